package main

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/iot-monitoring/ingestor/internal/ingest"
	"github.com/iot-monitoring/ingestor/internal/store"
)

// TestGeneratePayload_MatchesTable checks that every generated reading
// decodes cleanly and fits the OLIMEX table.
func TestGeneratePayload_MatchesTable(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	table := store.OlimexTable(store.DefaultTableName)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 50; i++ {
		payload, err := json.Marshal(generatePayload(rng, now))
		if err != nil {
			t.Fatalf("Marshal() error = %v", err)
		}

		r, err := ingest.Decode("sensors/olimex", payload, now)
		if err != nil {
			t.Fatalf("Decode() error = %v for %s", err, payload)
		}
		if len(r.Fields) != len(table.ValueColumns()) {
			t.Errorf("fields = %d, want %d", len(r.Fields), len(table.ValueColumns()))
		}
		for _, f := range r.Fields {
			if !table.HasColumn(f.Name) {
				t.Errorf("field %q is not a table column", f.Name)
			}
		}
	}
}

func TestGeneratePayload_Ranges(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))

	for i := 0; i < 200; i++ {
		p := generatePayload(rng, time.Now())

		if v := p["heat_exchanger_efficiency"].(float64); v < 0.60 || v > 0.95 {
			t.Errorf("heat_exchanger_efficiency = %v, out of range", v)
		}
		if v := p["run_mode"].(int); v < 0 || v > 3 {
			t.Errorf("run_mode = %v, out of range", v)
		}
		if v := p["supply_air_fan_runtime"].(int64); v < 1_000 || v > 100_000 {
			t.Errorf("supply_air_fan_runtime = %v, out of range", v)
		}
	}
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr bool
	}{
		{
			name: "defaults",
			args: nil,
			want: options{device: "olimex", interval: 5 * time.Second},
		},
		{
			name: "overrides",
			args: []string{"-device", "unit_2", "-interval", "250ms", "-count", "3", "-config", "x.yaml"},
			want: options{configPath: "x.yaml", device: "unit_2", interval: 250 * time.Millisecond, count: 3},
		},
		{name: "empty device", args: []string{"-device", ""}, wantErr: true},
		{name: "zero interval", args: []string{"-interval", "0s"}, wantErr: true},
		{name: "negative count", args: []string{"-count", "-1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("INGESTOR_CONFIG", "")
			got, err := parseFlags(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseFlags() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
