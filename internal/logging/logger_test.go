package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewWithWriterHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn")

	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %s", buf.String())
	}

	logger.Warn("shown")
	if !bytes.Contains(buf.Bytes(), []byte(`"msg":"shown"`)) {
		t.Fatalf("expected warn record, got %s", buf.String())
	}
}

func TestNewWithWriterDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "chatty")

	logger.Debug("hidden")
	logger.Info("shown")
	if bytes.Contains(buf.Bytes(), []byte("hidden")) || !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Fatalf("unexpected output %s", buf.String())
	}
}

func TestForServiceAddsGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := ForService(NewWithWriter(&buf, "info"), "TokenLedger", "test", "token.ledger")
	logger.Info("hello")

	var record struct {
		Service struct {
			Name     string `json:"name"`
			Env      string `json:"env"`
			Contract string `json:"contract"`
		} `json:"service"`
	}
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	if record.Service.Name != "TokenLedger" || record.Service.Env != "test" || record.Service.Contract != "token.ledger" {
		t.Fatalf("unexpected service group %+v", record.Service)
	}
}
