package browser

// Injected on every new document before site scripts run. Masks the usual
// headless/automation tells: navigator.webdriver, empty plugin list, missing
// window.chrome, and the SwiftShader WebGL strings.
const stealthScript = `
Object.defineProperty(navigator, 'webdriver', {
	get: () => undefined,
});

Object.defineProperty(navigator, 'plugins', {
	get: () => [1, 2, 3, 4, 5],
});

Object.defineProperty(navigator, 'languages', {
	get: () => ['en-AU', 'en'],
});

window.chrome = window.chrome || {
	runtime: {},
	loadTimes: function() {},
	csi: function() {},
	app: {}
};

if (window.navigator.permissions) {
	const originalQuery = window.navigator.permissions.query;
	window.navigator.permissions.query = (parameters) => (
		parameters.name === 'notifications' ?
			Promise.resolve({ state: Notification.permission }) :
			originalQuery(parameters)
	);
}

const getParameter = WebGLRenderingContext.prototype.getParameter;
WebGLRenderingContext.prototype.getParameter = function(parameter) {
	if (parameter === 37445) {
		return 'Intel Inc.';
	}
	if (parameter === 37446) {
		return 'Intel Iris OpenGL Engine';
	}
	return getParameter.call(this, parameter);
};
`
