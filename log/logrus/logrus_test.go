package logrus

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/unkn0wn-root/imgcache"
)

func TestLoggerAddsComponentAndFields(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base, "imgcache")

	l.Info("swept", imgcache.Fields{"op": "expired", "removed": 3})

	e := hook.LastEntry()
	if e == nil {
		t.Fatalf("no entry logged")
	}
	if e.Level != logrus.InfoLevel || e.Message != "swept" {
		t.Fatalf("entry=%v %q", e.Level, e.Message)
	}
	if e.Data["component"] != "imgcache" || e.Data["op"] != "expired" || e.Data["removed"] != 3 {
		t.Fatalf("data=%v", e.Data)
	}
}
