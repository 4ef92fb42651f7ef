package slots

import (
	"reflect"
	"testing"
)

func TestGenerateCatalog(t *testing.T) {
	tests := []struct {
		name    string
		start   string
		end     string
		step    int
		want    Catalog
		wantErr bool
	}{
		{name: "office default", start: "15:00", end: "18:00", step: 30, want: DefaultCatalog},
		{name: "hourly", start: "09:00", end: "12:00", step: 60, want: Catalog{"09:00", "10:00", "11:00"}},
		{name: "partial last slot dropped", start: "15:00", end: "16:10", step: 30, want: Catalog{"15:00", "15:30"}},
		{name: "zero step defaults to 30", start: "15:00", end: "16:00", step: 0, want: Catalog{"15:00", "15:30"}},
		{name: "end before start", start: "18:00", end: "15:00", step: 30, wantErr: true},
		{name: "window too short", start: "15:00", end: "15:10", step: 30, wantErr: true},
		{name: "bad start", start: "3pm", end: "18:00", step: 30, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := GenerateCatalog(tt.start, tt.end, tt.step)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNewCatalog_Explicit(t *testing.T) {
	got, err := NewCatalog([]string{"9:00", "09:30"}, "", "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(got, Catalog{"09:00", "09:30"}) {
		t.Errorf("unexpected catalog %v", got)
	}

	if _, err := NewCatalog([]string{"09:00", "9:00"}, "", "", 0); err == nil {
		t.Error("expected duplicate slot error")
	}
}

func TestCatalog_Pick(t *testing.T) {
	tests := []struct {
		input  string
		want   string
		wantOK bool
	}{
		{"1", "15:00", true},
		{" 3 ", "16:00", true},
		{"6", "17:30", true},
		{"0", "", false},
		{"7", "", false},
		{"-1", "", false},
		{"tres", "", false},
	}

	for _, tt := range tests {
		got, ok := DefaultCatalog.Pick(tt.input)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("Pick(%q) = %q, %v; want %q, %v", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}
