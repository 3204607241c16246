package datadog

import (
	"reflect"
	"testing"

	"github.com/starload/starload/internal/metrics"
)

func TestNewBackend_RequiresAddr(t *testing.T) {
	if _, err := NewBackend(Config{}); err == nil {
		t.Fatal("expected error for empty Addr")
	}
}

func TestLabelsToTags(t *testing.T) {
	got := labelsToTags(metrics.Labels{"step": "facts", "job": "load"})
	want := []string{"job:load", "step:facts"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("labelsToTags = %v, want %v", got, want)
	}
	if labelsToTags(nil) != nil {
		t.Error("labelsToTags(nil) should be nil")
	}
}

func TestBackend_SendsOverUDP(t *testing.T) {
	b, err := NewBackend(Config{Addr: "127.0.0.1:8125", Namespace: "starload."})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	b.IncCounter(metrics.RowsTotal, 3, metrics.Labels{"kind": "dropped"})
	b.ObserveHistogram(metrics.StepDuration, 1.5, metrics.Labels{"step": "facts"})
	if err := b.Flush(); err != nil {
		t.Errorf("Flush: %v", err)
	}
}
