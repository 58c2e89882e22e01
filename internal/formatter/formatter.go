// package formatter renders task states to various formats (CSV, Markdown, plain text, JSON)
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/desertthunder/tixd/internal/models"
)

// ExportToCSV converts task states to CSV format with columns: Task ID, Status, Progress, Message, Succeeded,
// Accounts, Updated At
func ExportToCSV(states []models.TaskState) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Task ID", "Status", "Progress", "Message", "Succeeded", "Accounts", "Updated At"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, s := range states {
		accounts := ""
		if s.Result != nil {
			accounts = strconv.Itoa(len(s.Result.Results))
		}
		record := []string{
			s.TaskID,
			string(s.Status),
			strconv.Itoa(s.Progress),
			s.Message,
			strconv.Itoa(s.Result.Succeeded()),
			accounts,
			formatTime(s.UpdatedAt),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// ExportToMarkdown renders a report of one task with its per-account outcomes and, when given, its transition
// history
func ExportToMarkdown(state models.TaskState, history []models.TaskState) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", state.TaskID))
	buf.WriteString(fmt.Sprintf("**Status**: %s\n", state.Status))
	buf.WriteString(fmt.Sprintf("**Progress**: %d%%\n", state.Progress))
	if state.Message != "" {
		buf.WriteString(fmt.Sprintf("**Message**: %s\n", state.Message))
	}
	if !state.UpdatedAt.IsZero() {
		buf.WriteString(fmt.Sprintf("**Updated**: %s\n", formatTime(state.UpdatedAt)))
	}

	if r := state.Result; r != nil {
		buf.WriteString(fmt.Sprintf("\n## Accounts (%d/%d succeeded)\n\n", r.Succeeded(), len(r.Results)))
		for i, o := range r.Results {
			if o.Success {
				buf.WriteString(fmt.Sprintf("%d. %s: succeeded%s\n", i+1, o.AccountID, orderSuffix(o.Data)))
			} else {
				buf.WriteString(fmt.Sprintf("%d. %s: failed (%s)\n", i+1, o.AccountID, o.Error))
			}
		}
	}

	if len(history) > 0 {
		buf.WriteString("\n## History\n\n")
		buf.WriteString("| Time | Status | Progress | Message |\n")
		buf.WriteString("|------|--------|----------|---------|\n")
		for _, h := range history {
			buf.WriteString(fmt.Sprintf("| %s | %s | %d%% | %s |\n", formatTime(h.UpdatedAt), h.Status, h.Progress, h.Message))
		}
	}

	return buf.Bytes(), nil
}

// ExportToText converts task states to plain text format, one line per task
func ExportToText(states []models.TaskState) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, states); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ExportToJSON renders v as indented JSON with a trailing newline
func ExportToJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteTable writes states to w as aligned columns
func WriteTable(w io.Writer, states []models.TaskState) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK ID\tSTATUS\tPROGRESS\tUPDATED\tMESSAGE")
	for _, s := range states {
		fmt.Fprintf(tw, "%s\t%s\t%d%%\t%s\t%s\n", s.TaskID, s.Status, s.Progress, formatTime(s.UpdatedAt), s.Message)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	return nil
}

// WriteDetail writes a single task's state and outcomes to w
func WriteDetail(w io.Writer, state models.TaskState) error {
	data, err := ExportToMarkdown(state, nil)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

// WriteCSVExport writes states as CSV.
//
// Defaults to tasks.csv as the filename.
func WriteCSVExport(states []models.TaskState, path string) (string, error) {
	if path == "" {
		path = "tasks.csv"
	}

	data, err := ExportToCSV(states)
	if err != nil {
		return "", fmt.Errorf("failed to generate CSV: %w", err)
	}
	return path, writeFile(path, data)
}

// WriteMarkdownExport writes a task report.
//
// Defaults to {task_id}.md as the filename.
func WriteMarkdownExport(state models.TaskState, history []models.TaskState, path string) (string, error) {
	if path == "" {
		path = state.TaskID + ".md"
	}

	data, err := ExportToMarkdown(state, history)
	if err != nil {
		return "", fmt.Errorf("failed to generate Markdown: %w", err)
	}
	return path, writeFile(path, data)
}

// WriteTextExport writes states as a plain text table.
//
// Defaults to tasks.txt as the filename.
func WriteTextExport(states []models.TaskState, path string) (string, error) {
	if path == "" {
		path = "tasks.txt"
	}

	data, err := ExportToText(states)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}
	return path, writeFile(path, data)
}

// WriteJSONExport writes v as indented JSON.
//
// Defaults to tasks.json as the filename.
func WriteJSONExport(v any, path string) (string, error) {
	if path == "" {
		path = "tasks.json"
	}

	data, err := ExportToJSON(v)
	if err != nil {
		return "", err
	}
	return path, writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func orderSuffix(data map[string]any) string {
	if id, ok := data["order_id"]; ok {
		return fmt.Sprintf(", order %v", id)
	}
	return ""
}
