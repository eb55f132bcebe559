package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/tranthanhvu011/DTWH/internal/config"
	"github.com/tranthanhvu011/DTWH/internal/models"
)

func TestRenderLogTable(t *testing.T) {
	entries := []models.LogEntry{{
		ConfigID:  2,
		Timestamp: time.Date(2026, 10, 19, 10, 30, 0, 0, time.UTC),
		Action:    models.ActionLoadWarehouse,
		Details:   "3 products <added>",
		Process:   models.ProcessWarehouse,
		Status:    models.StatusSuccess,
	}}

	body, err := RenderLogTable("Recent Logs", entries)
	if err != nil {
		t.Fatalf("RenderLogTable: %v", err)
	}
	for _, want := range []string{"<th>Config ID</th>", "2026-10-19 10:30:00", "Load data to Warehouse", "&lt;added&gt;", "Success"} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

func TestRenderLogTableEmpty(t *testing.T) {
	body, err := RenderLogTable("Recent Logs", nil)
	if err != nil {
		t.Fatalf("RenderLogTable: %v", err)
	}
	if !strings.Contains(body, "No log entries available") {
		t.Fatalf("body = %s", body)
	}
}

func TestSMTPNotifierSend(t *testing.T) {
	n := NewSMTPNotifier(config.NotifyConfig{Host: "smtp.example.com", Port: 587, Username: "etl@example.com", Password: "pw"})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := n.Send(context.Background(), "Load DataWareHouse Completed", "<p>ok</p>", []string{"ops@example.com"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAddr != "smtp.example.com:587" || gotFrom != "etl@example.com" {
		t.Fatalf("addr=%s from=%s", gotAddr, gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "ops@example.com" {
		t.Fatalf("to = %v", gotTo)
	}
	msg := string(gotMsg)
	if !strings.Contains(msg, "Content-Type: text/html") || !strings.HasSuffix(msg, "<p>ok</p>") {
		t.Fatalf("message = %q", msg)
	}
}

func TestSMTPNotifierWrapsError(t *testing.T) {
	n := NewSMTPNotifier(config.NotifyConfig{Host: "smtp.example.com", Port: 25})
	boom := errors.New("relay refused")
	n.send = func(string, smtp.Auth, string, []string, []byte) error { return boom }

	err := n.Send(context.Background(), "s", "b", []string{"x@example.com"})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewReturnsNopWhenDisabled(t *testing.T) {
	if _, ok := New(config.NotifyConfig{Enabled: false}).(NopNotifier); !ok {
		t.Fatalf("disabled config should yield NopNotifier")
	}
	if _, ok := New(config.NotifyConfig{Enabled: true, Host: "h", Recipients: []string{"a@b"}}).(*SMTPNotifier); !ok {
		t.Fatalf("enabled config should yield SMTPNotifier")
	}
}
