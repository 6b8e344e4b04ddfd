package plog

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestRankAttachesField(t *testing.T) {
	var buf bytes.Buffer
	Base().SetOutput(&buf)
	Base().SetFormatter(&logrus.JSONFormatter{})

	Rank(3).Info("hello")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if decoded["rank"] != float64(3) {
		t.Fatalf("rank field=%v want 3", decoded["rank"])
	}
	if decoded["msg"] != "hello" {
		t.Fatalf("msg field=%v want hello", decoded["msg"])
	}
}

func TestWithAttachesArbitraryFields(t *testing.T) {
	var buf bytes.Buffer
	Base().SetOutput(&buf)
	Base().SetFormatter(&logrus.JSONFormatter{})

	With(logrus.Fields{"op": "BuildBoxPlan", "ioTask": 2}).Warn("needs fill")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if decoded["op"] != "BuildBoxPlan" {
		t.Fatalf("op field=%v", decoded["op"])
	}
	if decoded["level"] != "warning" {
		t.Fatalf("level field=%v want warning", decoded["level"])
	}
}
