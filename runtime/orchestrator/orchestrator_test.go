package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fieldforge/extract/runtime/architect"
	"github.com/fieldforge/extract/runtime/diagnostic"
	"github.com/fieldforge/extract/runtime/extractor"
	"github.com/fieldforge/extract/runtime/parserequest"
	"github.com/fieldforge/extract/runtime/plan"
	"github.com/fieldforge/extract/runtime/queue"
	"github.com/fieldforge/extract/runtime/resolve"
	"github.com/fieldforge/extract/runtime/telemetry"
)

func newTestOrchestrator(reg *resolve.Registry, q queue.Queue) *Orchestrator {
	return New(Config{
		Architect: architect.New(architect.Options{}),
		Extractor: extractor.New(extractor.Options{Registry: reg, Queue: q}),
	})
}

func TestParse_JSONHappyPathResolvesViaJSONPath(t *testing.T) {
	t.Parallel()
	reg := resolve.NewRegistry(resolve.JSONResolver{}, resolve.LooseKVResolver{}, resolve.DefaultResolver{})
	o := newTestOrchestrator(reg, nil)

	req := parserequest.Request{
		InputData: `{"Name":"Ada Lovelace","Email":"ada@analytical.engine"}`,
		Schema: map[string]parserequest.FieldSchema{
			"name":  {ValidationType: plan.ValidationString, Required: true},
			"email": {ValidationType: plan.ValidationEmail, Required: true},
		},
	}

	resp := o.Parse(context.Background(), req)

	require.True(t, resp.Success)
	require.Equal(t, "Ada Lovelace", resp.ParsedData["name"])
	require.Equal(t, "ada@analytical.engine", resp.ParsedData["email"])
	require.Equal(t, "json", resp.Metadata.Plan.Metadata.DetectedFormat)
	require.GreaterOrEqual(t, resp.Metadata.Confidence, 0.8)

	var messages []string
	for _, d := range resp.Metadata.Diagnostics {
		messages = append(messages, d.Message)
	}
	require.Contains(t, messages, "Resolved via JSON path Name")
	require.Contains(t, messages, "Resolved via JSON path Email")
}

func TestParse_KeyValueProseDetectsFinanceContext(t *testing.T) {
	t.Parallel()
	reg := resolve.NewRegistry(resolve.LooseKVResolver{}, resolve.DefaultResolver{})
	o := newTestOrchestrator(reg, nil)

	req := parserequest.Request{
		InputData: "Invoice Total: $1,234.56\nDue Date: 2024-02-01\nNotes: net-30",
		Schema: map[string]parserequest.FieldSchema{
			"invoice_total": {ValidationType: plan.ValidationCurrency, Required: true},
			"due_date":      {ValidationType: plan.ValidationISODate, Required: true},
		},
	}

	resp := o.Parse(context.Background(), req)

	require.True(t, resp.Success)
	require.Equal(t, "$1,234.56", resp.ParsedData["invoice_total"])
	require.Equal(t, "2024-02-01", resp.ParsedData["due_date"])
	require.Equal(t, "key-value", resp.Metadata.Plan.Metadata.DetectedFormat)
	require.Equal(t, "finance", resp.Metadata.Plan.Metadata.DetectedContext)
	require.GreaterOrEqual(t, resp.Metadata.Confidence, 0.7)
}

func TestParse_InstructionGuidedExtractionCarriesFieldGuidance(t *testing.T) {
	t.Parallel()
	reg := resolve.NewRegistry(resolve.LooseKVResolver{}, resolve.DefaultResolver{})
	o := newTestOrchestrator(reg, nil)

	req := parserequest.Request{
		InputData:    "Header\nCustomer Name: Dr. Grace B. Hopper\nRole: Rear Admiral",
		Instructions: "Customer Name - Prefer the full legal name from the contact record.",
		Schema: map[string]parserequest.FieldSchema{
			"customer_name": {ValidationType: plan.ValidationName, Required: true},
		},
	}

	resp := o.Parse(context.Background(), req)

	require.True(t, resp.Success)
	require.Equal(t, "Dr. Grace B. Hopper", resp.ParsedData["customer_name"])
	require.Len(t, resp.Metadata.Plan.Steps, 1)
	require.Contains(t, resp.Metadata.Plan.Steps[0].SearchInstruction, "Prefer the full legal name")
}

func TestParse_PlanCacheReuseAcrossIdenticalSchemaRequests(t *testing.T) {
	t.Parallel()
	reg := resolve.NewRegistry(resolve.LooseKVResolver{}, resolve.DefaultResolver{})
	bus := telemetry.NewBus()
	var cacheActions []telemetry.CacheAction
	_, err := bus.Register(telemetry.ListenerFunc(func(_ context.Context, e telemetry.Event) {
		if e.Type == telemetry.EventPlanCache {
			cacheActions = append(cacheActions, e.Payload["action"].(telemetry.CacheAction))
		}
	}))
	require.NoError(t, err)

	o := New(Config{
		Architect: architect.New(architect.Options{}),
		Extractor: extractor.New(extractor.Options{Registry: reg}),
		Telemetry: bus,
	})

	schema := map[string]parserequest.FieldSchema{
		"amount": {ValidationType: plan.ValidationCurrency, Required: true},
	}

	first := o.Parse(context.Background(), parserequest.Request{InputData: "Amount: $10", Schema: schema})
	require.True(t, first.Success)
	require.Equal(t, plan.OriginHeuristic, first.Metadata.Plan.Metadata.Origin)
	require.Greater(t, first.Metadata.ArchitectTokens, 0)

	second := o.Parse(context.Background(), parserequest.Request{InputData: "Amount: $20", Schema: schema})
	require.True(t, second.Success)
	require.Equal(t, plan.OriginCached, second.Metadata.Plan.Metadata.Origin)
	require.Equal(t, 0, second.Metadata.ArchitectTokens)

	require.Equal(t, []telemetry.CacheAction{
		telemetry.CacheActionMiss, telemetry.CacheActionStore, telemetry.CacheActionHit,
	}, cacheActions)
}

func TestParse_LowConfidenceFieldWithFallbackDisabledFailsGracefully(t *testing.T) {
	t.Parallel()
	reg := resolve.NewRegistry(resolve.LooseKVResolver{}, resolve.SectionResolver{}, resolve.DefaultResolver{})
	o := newTestOrchestrator(reg, nil)

	req := parserequest.Request{
		InputData: "Projected uplift roughly thirty to forty percent YoY",
		Schema: map[string]parserequest.FieldSchema{
			"revenue": {ValidationType: plan.ValidationCurrency, Required: true},
		},
	}

	resp := o.Parse(context.Background(), req)

	require.False(t, resp.Success)
	revenue, ok := resp.ParsedData["revenue"]
	require.True(t, ok, "unresolved schema key must still yield a null entry, not an absent one")
	require.Nil(t, revenue)
	require.Nil(t, resp.Metadata.Fallback)

	var found bool
	for _, d := range resp.Metadata.Diagnostics {
		if d.Field == "revenue" && d.Severity == diagnostic.SeverityWarning {
			found = true
		}
	}
	require.True(t, found)
}

func TestParse_EveryUnresolvedSchemaKeyBackfillsToNull(t *testing.T) {
	t.Parallel()
	reg := resolve.NewRegistry(resolve.DefaultResolver{})
	o := newTestOrchestrator(reg, nil)

	req := parserequest.Request{
		InputData: "nothing structured in here at all",
		Schema: map[string]parserequest.FieldSchema{
			"missing":    {ValidationType: plan.ValidationEmail, Required: false},
			"also_blank": {ValidationType: plan.ValidationURL, Required: false},
		},
	}

	resp := o.Parse(context.Background(), req)

	require.Len(t, resp.ParsedData, len(req.Schema))
	for key := range req.Schema {
		value, ok := resp.ParsedData[key]
		require.Truef(t, ok, "schema key %q must be present in parsedData, even unresolved", key)
		require.Nilf(t, value, "unresolved schema key %q must be null, not some other placeholder", key)
	}
}

func TestParse_ParallelStrategyPreservesDiagnosticOrder(t *testing.T) {
	t.Parallel()
	reg := resolve.NewRegistry(resolve.DefaultResolver{})
	q := queue.New(8)
	o := newTestOrchestrator(reg, q)

	req := parserequest.Request{
		InputData: "nothing relevant in here",
		Schema: map[string]parserequest.FieldSchema{
			"a": {ValidationType: plan.ValidationEmail, Required: true},
			"b": {ValidationType: plan.ValidationEmail, Required: true},
			"c": {ValidationType: plan.ValidationEmail, Required: true},
			"d": {ValidationType: plan.ValidationEmail, Required: true},
			"e": {ValidationType: plan.ValidationEmail, Required: true},
		},
		Options: parserequest.Options{Strategy: plan.StrategyParallel},
	}

	resp := o.Parse(context.Background(), req)

	require.False(t, resp.Success)
	require.Equal(t, plan.StrategyParallel, resp.Metadata.Plan.Strategy)

	var fields []string
	for _, d := range resp.Metadata.Diagnostics {
		fields = append(fields, d.Field)
	}
	require.Equal(t, []string{"a", "b", "c", "d", "e"}, fields)
}
