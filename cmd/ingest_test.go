package cmd

import "testing"

func TestDecodeEntries(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    int
		wantErr bool
	}{
		{
			name: "single object",
			data: `{"employee_display_name":"Doe, Jane - 500","project_number":"100","job_hours":25}`,
			want: 1,
		},
		{
			name: "array with leading whitespace",
			data: "\n  [{\"project_number\":\"100\"},{\"project_number\":\"200\"}]",
			want: 2,
		},
		{
			name:    "garbage",
			data:    `not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := decodeEntries([]byte(tt.data))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeEntries: %v", err)
			}
			if len(entries) != tt.want {
				t.Fatalf("expected %d entries, got %d", tt.want, len(entries))
			}
		})
	}
}

func TestShorten(t *testing.T) {
	long := "Bridge retrofit in the Oakland harbor with seismic upgrades and a new deck surface"
	if got := shorten(long); len([]rune(got)) != reviewLabelLen+3 {
		t.Fatalf("unexpected shortened label %q", got)
	}
	if got := shorten("short"); got != "short" {
		t.Fatalf("short labels must stay intact, got %q", got)
	}
}
