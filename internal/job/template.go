package job

import (
	"os"
	"strings"
	"time"
)

// noPreviousReport is the literal returned for {last_report} when no prior
// run produced a report.md (spec.md §4.D).
const noPreviousReport = "(no previous report)"

// ResolvePrompt expands the template placeholders in a job's prompt:
// {day}, {date} (ISO date), {time} (HH:MM:SS), {job_name}, and
// {last_report} (the latest run's report.md contents, or the literal
// placeholder if none exists).
func ResolvePrompt(s Spec, now time.Time, lastReportPath string) string {
	replacer := strings.NewReplacer(
		"{day}", now.Format("Monday"),
		"{date}", now.Format("2006-01-02"),
		"{time}", now.Format("15:04:05"),
		"{job_name}", s.Name,
		"{last_report}", readLastReport(lastReportPath),
	)
	return replacer.Replace(s.Prompt)
}

func readLastReport(path string) string {
	if path == "" {
		return noPreviousReport
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return noPreviousReport
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return noPreviousReport
	}
	return trimmed
}
