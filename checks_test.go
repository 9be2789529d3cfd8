package pollpool

import (
	"errors"
	"testing"
)

func TestExpectJSONField(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		accepted []string
		body     string
		wantErr  bool
	}{
		{"top level healthy", "status", nil, `{"status": "healthy"}`, false},
		{"case insensitive", "status", nil, `{"status": "OK"}`, false},
		{"nested", "data.health.status", nil, `{"data": {"health": {"status": "up"}}}`, false},
		{"bool true", "ok", nil, `{"ok": true}`, false},
		{"bool false", "ok", nil, `{"ok": false}`, true},
		{"number one", "ok", nil, `{"ok": 1}`, false},
		{"number zero", "ok", nil, `{"ok": 0}`, true},
		{"unhealthy value", "status", nil, `{"status": "degraded"}`, true},
		{"missing field", "status", nil, `{"state": "ok"}`, true},
		{"missing nested", "data.status", nil, `{"data": "flat"}`, true},
		{"not json", "status", nil, `OK`, true},
		{"object leaf", "status", nil, `{"status": {"nested": "ok"}}`, true},
		{"custom accepted", "state", []string{"serving"}, `{"state": "SERVING"}`, false},
		{"custom rejects default", "state", []string{"serving"}, `{"state": "ok"}`, true},
		{"numeric accepted", "code", []string{"200"}, `{"code": 200}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := ExpectJSONField(tt.path, tt.accepted...)
			err := check([]byte(tt.body), 200)
			if (err != nil) != tt.wantErr {
				t.Fatalf("check() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrCheckFailed) {
				t.Errorf("check() error = %v, want wrapping ErrCheckFailed", err)
			}
		})
	}
}

func TestExpectBodyContains(t *testing.T) {
	check := ExpectBodyContains("Healthy")

	tests := []struct {
		body    string
		wantErr bool
	}{
		{"service is healthy", false},
		{"HEALTHY", false},
		{"unhealthy", false}, // substring match
		{"degraded", true},
		{"", true},
	}

	for _, tt := range tests {
		err := check([]byte(tt.body), 200)
		if (err != nil) != tt.wantErr {
			t.Errorf("check(%q) error = %v, wantErr %v", tt.body, err, tt.wantErr)
		}
	}
}

func TestExpectBodyMatch(t *testing.T) {
	check, err := ExpectBodyMatch(`"status":\s*"(\w+)"`, "ok")
	if err != nil {
		t.Fatalf("ExpectBodyMatch() error = %v", err)
	}

	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"match", `{"status": "ok"}`, false},
		{"match case insensitive", `{"status":"OK"}`, false},
		{"wrong capture", `{"status": "down"}`, true},
		{"no match", `{"state": "ok"}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := check([]byte(tt.body), 200)
			if (err != nil) != tt.wantErr {
				t.Errorf("check() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExpectBodyMatch_InvalidPattern(t *testing.T) {
	if _, err := ExpectBodyMatch(`[invalid`, "ok"); err == nil {
		t.Error("ExpectBodyMatch() expected error for invalid pattern")
	}
	if _, err := ExpectBodyMatch(`status`, "ok"); err == nil {
		t.Error("ExpectBodyMatch() expected error for pattern without capture group")
	}
}

func TestMustExpectBodyMatch_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("MustExpectBodyMatch() should panic on invalid pattern")
		}
	}()
	MustExpectBodyMatch(`[invalid`, "ok")
}

func TestMustExpectBodyMatch_Valid(t *testing.T) {
	check := MustExpectBodyMatch(`version=(\d+)`, "2")
	if err := check([]byte("version=2"), 200); err != nil {
		t.Errorf("check() error = %v", err)
	}
}

func TestExpectStatus(t *testing.T) {
	check := ExpectStatus(200, 204)

	for code, wantErr := range map[int]bool{200: false, 204: false, 201: true, 302: true} {
		err := check(nil, code)
		if (err != nil) != wantErr {
			t.Errorf("check(%d) error = %v, wantErr %v", code, err, wantErr)
		}
	}
}

func TestAllChecks(t *testing.T) {
	check := AllChecks(
		ExpectStatus(200),
		nil,
		ExpectBodyContains("ok"),
	)

	if err := check([]byte("ok"), 200); err != nil {
		t.Errorf("check() error = %v", err)
	}
	if err := check([]byte("ok"), 204); err == nil {
		t.Error("check() should fail on status")
	}
	if err := check([]byte("down"), 200); err == nil {
		t.Error("check() should fail on body")
	}

	if err := AllChecks()([]byte("anything"), 500); err != nil {
		t.Errorf("empty AllChecks() error = %v", err)
	}
}
