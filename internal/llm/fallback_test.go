package llm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ppiankov/riskpilot/internal/model"
	"github.com/ppiankov/riskpilot/internal/validate"
)

func TestFallbackClient_DelayedMilestone(t *testing.T) {
	f := NewFallbackClient(nil)
	req := GenerateRequest{
		SignalTypes: []model.SignalType{model.SignalDeliveryRisk},
		Segments:    []string{"Milestone 3 is 6 weeks delayed due to staffing shortfall"},
	}

	resp, err := f.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !resp.Fallback || resp.Model != model.FallbackModelName {
		t.Errorf("Expected fallback response, got %+v", resp)
	}

	res, err := validate.Parse(resp.Text, validate.DraftDefaults{Requested: req.SignalTypes, ModelUsed: resp.Model})
	if err != nil {
		t.Fatalf("fallback reply must parse: %v", err)
	}
	if len(res.Drafts) != 1 {
		t.Fatalf("Expected 1 draft, got %d", len(res.Drafts))
	}
	d := res.Drafts[0]
	if d.SignalType != model.SignalDeliveryRisk || d.RawValue != "HIGH" {
		t.Errorf("Expected delivery_risk HIGH, got %s %s", d.SignalType, d.RawValue)
	}
	if d.Confidence != FallbackConfidence {
		t.Errorf("Expected confidence %v, got %v", FallbackConfidence, d.Confidence)
	}
	if !strings.Contains(d.Explanation, "delayed") {
		t.Errorf("Explanation should name the matched keyword: %q", d.Explanation)
	}
	if !strings.Contains(d.Explanation, "Demo mode") {
		t.Errorf("Explanation should note demo mode: %q", d.Explanation)
	}
}

func TestFallbackClient_Deterministic(t *testing.T) {
	f := NewFallbackClient(nil)
	req := GenerateRequest{
		SignalTypes: model.AllSignalTypes,
		Segments: []string{
			"Integration testing delayed two sprints; vendor dependency pending.",
			"Cloud spend spike of 40% over plan.",
			"Prompt cache reuse cut tokens; automated routing saves cost.",
		},
	}

	first, err := f.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := f.Generate(context.Background(), req)
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		if again.Text != first.Text {
			t.Fatalf("Fallback output changed between runs:\n%s\n%s", first.Text, again.Text)
		}
	}

	res, err := validate.Parse(first.Text, validate.DraftDefaults{Requested: req.SignalTypes})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Drafts) != 3 {
		t.Fatalf("Expected one draft per type, got %d", len(res.Drafts))
	}
	if v := res.Drafts[0].RawValue; v != "MEDIUM" && v != "HIGH" {
		t.Errorf("Expected elevated delivery risk for 'delayed', got %s", v)
	}
	if res.Drafts[1].RawValue != "ANOMALOUS" {
		t.Errorf("Expected ANOMALOUS cost, got %s", res.Drafts[1].RawValue)
	}
}

func TestFallbackClient_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewFallbackClient(nil).Generate(ctx, GenerateRequest{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestResilientClient_FallsBackOnPermanentError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiError(w, http.StatusForbidden, "missing inference scope")
	}))
	defer server.Close()

	r := NewResilientClient(testRemote(t, server.URL, nil), nil, nil)
	if r.Offline() || r.Name() != "test-model" {
		t.Errorf("Expected remote-backed client, got offline=%v name=%s", r.Offline(), r.Name())
	}

	resp, err := r.Generate(context.Background(), GenerateRequest{
		SignalTypes: []model.SignalType{model.SignalCostRisk},
		Segments:    []string{"Spend is on plan."},
	})
	if err != nil {
		t.Fatalf("Generate must not fail when fallback is available: %v", err)
	}
	if !resp.Fallback || !strings.HasPrefix(resp.FallbackReason, "Fallback mode:") {
		t.Errorf("Expected fallback with reason, got %+v", resp)
	}
	if !strings.Contains(resp.FallbackReason, "403") {
		t.Errorf("Reason should carry the endpoint error: %q", resp.FallbackReason)
	}
}

func TestResilientClient_FallsBackAfterRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiError(w, http.StatusBadGateway, "upstream down")
	}))
	defer server.Close()

	r := NewResilientClient(testRemote(t, server.URL, nil), nil, nil)
	resp, err := r.Generate(context.Background(), GenerateRequest{Segments: []string{"all good"}})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if !resp.Fallback || resp.Model != model.FallbackModelName {
		t.Errorf("Expected fallback, got %+v", resp)
	}
}

func TestResilientClient_CanceledIsNotMasked(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	r := NewResilientClient(testRemote(t, server.URL, nil), nil, nil)
	done := make(chan error, 1)
	go func() {
		_, err := r.Generate(ctx, GenerateRequest{})
		done <- err
	}()
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}

func TestNewClient_NoCredentialIsOffline(t *testing.T) {
	c, err := NewClient(model.LLMConfig{Provider: "fallback"}, Deps{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if !c.Offline() || c.Name() != model.FallbackModelName {
		t.Errorf("Expected offline client, got offline=%v name=%s", c.Offline(), c.Name())
	}

	if _, err := NewClient(model.LLMConfig{Provider: "bogus"}, Deps{}); err == nil {
		t.Error("Expected error for unknown provider")
	}
}
