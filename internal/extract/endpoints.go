package extract

import (
	"fmt"

	"sm8extract/internal/result"
)

// The three request templates the tokens slot into. The s_form_values lists
// are part of the vendor's RPC contract and must be carried verbatim.
const (
	calendarURL = "https://go.servicem8.com/CalendarStoreRequest?s_cv=&s_form_values=query-start-limit-_dc-callback-records-xaction-end-id-strJobUUID&s_auth=%s"

	updateReminderURL = "https://ap-southeast-2.go.servicem8.com/PluginReminders_UpdateReminderForJobActivity?s_form_values=strReminderUUID-strOriginalStartDate-strOriginalEndDate-strOriginalStaffUUID-strNewStartDate-strNewEndDate-strNewStaffUUID-strNewStaffUUIDList-boolModifyAllFollowingRecurrences&s_auth=%s"

	saveScheduleURL = "https://ap-southeast-2.go.servicem8.com/PluginReminders_SaveRecurringJobSchedule?s_form_values=strReminderUUID-strCustomerUUID-strJobTemplateUUID-strAlertMode-strAllocationWindowUUID-strScheduledStartTime-intScheduledDuration-strStaffUUID-strStaffUUIDList-strAlertDescription-strRecurrenceType-strDailyMode-strWeeklyMode-strMonthlyMode-strYearlyMode-intDailyInterval-intWeeklyInterval-intWeeklyWeeksAfterCompletion-arrWeeklyDayNames-intMonthlyDayEveryMonth-intMonthlyDayEveryMonthInterval-strMonthlyMode2WeekType-intMonthlyMode2DayName-intMonthlyMode2MonthInterval-strYearlyMode2WeekType-intYearlyMode1Month-intYearlyMode1Day-intYearlyMode2DayName-intYearlyMode2Month-strPatternStartDate-strPatternEndDateMode-strPatternEndDate-intPatternEndDateOccurrences-boolCancelReminder&s_auth=%s"
)

// BuildResult stitches the scraped tokens into the fixed endpoint templates.
// Fallback tokens all point at the calendar template since that is the only
// endpoint usable without form-specific parameters.
func BuildResult(tokens map[string]string, cookie string) *result.Result {
	r := &result.Result{Cookie: cookie}

	if tok, ok := tokens[KeyCalendar]; ok {
		r.APIEndpoints = append(r.APIEndpoints, result.Endpoint{
			URL:   fmt.Sprintf(calendarURL, tok),
			SAuth: tok,
		})
	}
	if tok, ok := tokens[KeyUpdateReminder]; ok {
		r.APIEndpoints = append(r.APIEndpoints, result.Endpoint{
			URL:   fmt.Sprintf(updateReminderURL, tok),
			SAuth: tok,
		})
	}
	if tok, ok := tokens[KeySaveSchedule]; ok {
		r.APIEndpoints = append(r.APIEndpoints, result.Endpoint{
			URL:   fmt.Sprintf(saveScheduleURL, tok),
			SAuth: tok,
		})
	}
	if len(r.APIEndpoints) > 0 {
		return r
	}

	for _, fb := range []struct {
		key, typ string
	}{
		{KeyGeneralAuth, "fallback_calendar"},
		{KeyFallbackAuth, "fallback_general"},
		{KeyEndpointAuth, "fallback_endpoint"},
	} {
		if tok, ok := tokens[fb.key]; ok {
			r.APIEndpoints = append(r.APIEndpoints, result.Endpoint{
				URL:   fmt.Sprintf(calendarURL, tok),
				SAuth: tok,
				Type:  fb.typ,
			})
		}
	}
	return r
}
