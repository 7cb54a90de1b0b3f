package ai

import "testing"

func TestMatchCategory(t *testing.T) {
	categories := []string{"Groceries", "Transport", "Rent"}

	tests := []struct {
		name   string
		answer string
		want   string
	}{
		{"exact match", "Groceries", "Groceries"},
		{"case insensitive", "groceries", "Groceries"},
		{"trailing period", "Transport.", "Transport"},
		{"quoted", `"Rent"`, "Rent"},
		{"whitespace", "  Rent \n", "Rent"},
		{"none sentinel", "none", ""},
		{"empty answer", "", ""},
		{"hallucinated category", "Entertainment", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchCategory(tt.answer, categories)
			if got != tt.want {
				t.Errorf("matchCategory(%q) = %q, want %q", tt.answer, got, tt.want)
			}
		})
	}
}
