package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

// TestNew はロガー生成を検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("JSON形式で出力されること", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger, err := New(&buf, "info", "json")
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		logger.Info("起動", "port", "8080")

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("JSONのパースに失敗: %v (%s)", err, buf.String())
		}
		if entry["msg"] != "起動" || entry["port"] != "8080" {
			t.Errorf("entry = %v", entry)
		}
	})

	t.Run("設定レベル未満のログは出力されないこと", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger, err := New(&buf, "WARN", "text")
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		logger.Info("出力されない")
		logger.Warn("出力される")

		out := buf.String()
		if strings.Contains(out, "出力されない") {
			t.Errorf("INFOログが出力された: %s", out)
		}
		if !strings.Contains(out, "出力される") {
			t.Errorf("WARNログが出力されていない: %s", out)
		}
	})

	t.Run("不正なレベルや形式はエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := New(&bytes.Buffer{}, "verbose", "text"); err == nil {
			t.Error("不正なレベルでエラーが返されなかった")
		}
		if _, err := New(&bytes.Buffer{}, "info", "xml"); err == nil {
			t.Error("不正な形式でエラーが返されなかった")
		}
	})
}
