package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/mikey/sms-spam-classifier/internal/core"
	"github.com/mikey/sms-spam-classifier/internal/training"
)

// WriteReport prints a training run summary and its classification report.
func WriteReport(w io.Writer, result *training.Result) {
	fmt.Fprintf(w, "Model:    %s\n", result.ModelName)
	fmt.Fprintf(w, "Run ID:   %s\n", result.RunID)
	fmt.Fprintf(w, "Rows:     %d (train %d, test %d)\n", result.Rows, result.TrainRows, result.TestRows)
	fmt.Fprintf(w, "Features: %d\n", result.NFeatures)
	fmt.Fprintf(w, "Duration: %s\n", result.Duration.Round(time.Millisecond))
	if len(result.Unrecognized) > 0 {
		labels := make([]string, 0, len(result.Unrecognized))
		for label := range result.Unrecognized {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			fmt.Fprintf(w, "Unrecognized label %q mapped to ham: %d rows\n", label, result.Unrecognized[label])
		}
	}
	fmt.Fprintln(w)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"", "Precision", "Recall", "F1-score", "Support"})
	table.SetAutoFormatHeaders(false)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")

	report := result.Report
	for _, c := range report.Classes {
		table.Append(metricsRow(core.LabelName(c), report.PerClass[c]))
	}
	support := report.WeightedAvg.Support
	table.Append([]string{"accuracy", "", "", format(report.Accuracy), strconv.Itoa(support)})
	table.Append(metricsRow("macro avg", report.MacroAvg))
	table.Append(metricsRow("weighted avg", report.WeightedAvg))
	table.Render()
}

func metricsRow(name string, m training.ClassMetrics) []string {
	return []string{name, format(m.Precision), format(m.Recall), format(m.F1), strconv.Itoa(m.Support)}
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
