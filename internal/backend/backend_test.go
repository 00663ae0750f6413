package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"encargos/internal/config"
	sheetsmem "encargos/internal/sheets/memory"
	"encargos/internal/storage"
	"encargos/internal/store/memory"
)

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{
		DataBackend:              "sqlite",
		SQLiteDBPath:             "/tmp/x.db",
		AMQPURL:                  "amqp://localhost/",
		AMQPExchange:             "encargos",
		AMQPQueue:                "ledger_events",
		GoogleSpreadsheetID:      "sheet",
		GoogleSheetName:          "Encargos",
		GoogleServiceAccountJSON: "{}",
	}

	got, err := FromAppConfig(cfg)
	if err != nil {
		t.Fatalf("FromAppConfig: %v", err)
	}
	if got.Type != SQLiteBackend || got.SQLiteDBPath != "/tmp/x.db" || got.AMQPQueue != "ledger_events" {
		t.Errorf("unexpected backend config %+v", got)
	}
	if got.GoogleServiceAccountJSON != "{}" {
		t.Error("expected credentials to be carried over")
	}

	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
	if _, err := FromAppConfig(&config.Config{DataBackend: "sheets"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"memory", Config{Type: MemoryBackend}, false},
		{"memory with amqp", Config{Type: MemoryBackend, AMQPURL: "amqp://localhost/"}, true},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: "x.db"}, false},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"unknown", Config{Type: "csv"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.config.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfigRejectsUnknownStore(t *testing.T) {
	_, err := FromAppConfig(&config.Config{DataBackend: "csv"})
	if err == nil || !strings.Contains(err.Error(), "DATA_BACKEND") {
		t.Errorf("expected a DATA_BACKEND error, got %v", err)
	}
}

func TestCreateMemoryBackend(t *testing.T) {
	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: MemoryBackend})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	if _, ok := res.Store.(*memory.Store); !ok {
		t.Errorf("expected memory store, got %T", res.Store)
	}
	if res.Events != nil {
		t.Error("memory backend has no events")
	}
	if err := res.Cleanup(); err != nil {
		t.Errorf("Cleanup: %v", err)
	}
}

func TestCreateSQLiteBackend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "encargos.db")

	res, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: SQLiteBackend, SQLiteDBPath: path})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	defer res.Cleanup()

	if _, ok := res.Store.(*storage.SQLiteRepository); !ok {
		t.Errorf("expected sqlite store, got %T", res.Store)
	}
	if err := res.Store.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestCreateExporterWithoutSpreadsheet(t *testing.T) {
	exp, err := CreateExporter(context.Background(), Config{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := exp.(*sheetsmem.Exporter); !ok {
		t.Errorf("expected memory exporter, got %T", exp)
	}
}
