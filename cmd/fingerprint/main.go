package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"sm8extract/internal/browser"
	"sm8extract/internal/fingerprint"
)

func main() {
	site := flag.String("site", "https://go.servicem8.com", "page to open before capturing")
	out := flag.String("out", "./device_fingerprint.json", "output JSON path for the fingerprint")
	headless := flag.Bool("headless", false, "capture without a visible window")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	b, err := browser.Launch(ctx, browser.Options{Headless: *headless, Quiet: true})
	if err != nil {
		log.Fatalf("browser: %v", err)
	}
	defer b.Close()

	if err := b.LoadPage(*site, 3, 5*time.Second); err != nil {
		log.Fatalf("load %s: %v", *site, err)
	}

	fp, err := fingerprint.Capture(b.Ctx(), "manual")
	if err != nil {
		log.Fatalf("capture: %v", err)
	}
	if err := fp.Save(*out); err != nil {
		log.Fatalf("write %s: %v", *out, err)
	}
	fmt.Printf("Wrote fingerprint to %s\n", *out)
	fmt.Printf("  user agent: %s\n", fp.UserAgent)
	fmt.Printf("  screen:     %s\n", fp.ScreenResolution)
	fmt.Printf("  captured:   %s\n", time.Unix(fp.Timestamp, 0).Format(time.RFC3339))
}
