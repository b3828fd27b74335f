package parser

import "github.com/yurifrl/feedscan/pkg/models"

const windowSize = 3

// Segment slices lines into consecutive, non-overlapping windows of three.
// A trailing remainder of one or two lines is dropped.
func Segment(lines []string) []models.Window {
	windows := make([]models.Window, 0, len(lines)/windowSize)
	for i := 0; i+windowSize <= len(lines); i += windowSize {
		windows = append(windows, models.Window{
			Summary: lines[i],
			Detail:  lines[i+1],
			When:    lines[i+2],
		})
	}
	return windows
}
