// Command extractdemo runs a single parse through an in-process Orchestrator
// and prints the resulting parsed data, confidence, and diagnostics. It is a
// minimal end-to-end wiring example, not a production entry point: no
// transport, no persistence beyond an in-memory plan cache.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"goa.design/clue/log"
	"gopkg.in/yaml.v3"

	"github.com/fieldforge/extract/runtime/architect"
	"github.com/fieldforge/extract/runtime/cache"
	"github.com/fieldforge/extract/runtime/extractor"
	"github.com/fieldforge/extract/runtime/orchestrator"
	"github.com/fieldforge/extract/runtime/parserequest"
	"github.com/fieldforge/extract/runtime/plan"
	"github.com/fieldforge/extract/runtime/queue"
	"github.com/fieldforge/extract/runtime/resolve"
	"github.com/fieldforge/extract/runtime/telemetry"
)

// fileConfig is the optional declarative request a caller can hand extractdemo
// instead of the built-in sample, loaded from YAML.
type fileConfig struct {
	InputData    string                     `yaml:"inputData"`
	Instructions string                     `yaml:"instructions"`
	Profile      string                     `yaml:"profile"`
	Strategy     string                     `yaml:"strategy"`
	Schema       map[string]fileFieldSchema `yaml:"outputSchema"`
}

type fileFieldSchema struct {
	ValidationType string `yaml:"validationType"`
	Description    string `yaml:"description"`
	Required       bool   `yaml:"required"`
	FallbackValue  any    `yaml:"fallbackValue"`
}

func main() {
	configF := flag.String("config", "", "path to a YAML file describing the parse request (defaults to a built-in sample)")
	dbgF := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	req, err := buildRequest(*configF)
	if err != nil {
		log.Fatal(ctx, err)
	}

	orch := newOrchestrator(ctx)
	resp := orch.Parse(ctx, req)

	printResponse(resp)
}

// newOrchestrator wires the default resolver chain (JSON, loose key-value,
// section scan, validation-aware default) behind a bounded async queue, an
// in-memory plan cache, and a telemetry bus that logs every event through
// clue. No lean-LLM fallback client is configured, so fields no resolver
// can find come back as null in parsedData.
func newOrchestrator(ctx context.Context) *orchestrator.Orchestrator {
	registry := resolve.NewRegistry(
		resolve.JSONResolver{},
		resolve.LooseKVResolver{},
		resolve.SectionResolver{},
		resolve.DefaultResolver{},
	)

	extr := extractor.New(extractor.Options{
		Registry: registry,
		Queue:    queue.New(4),
	})

	arch := architect.New(architect.Options{})

	bus := telemetry.NewBus()
	if _, err := bus.Register(telemetry.ListenerFunc(func(ctx context.Context, event telemetry.Event) {
		log.Debug(ctx, log.KV{K: "event", V: string(event.Type)}, log.KV{K: "requestID", V: event.RequestID})
	})); err != nil {
		log.Fatal(ctx, err)
	}

	return orchestrator.New(orchestrator.Config{
		Architect: arch,
		Extractor: extr,
		Cache:     cache.NewMemStore(cache.Options{TTL: 10 * time.Minute}),
		Telemetry: bus,
		Logger:    telemetry.NewClueLogger(),
	})
}

// buildRequest loads a parse request from path when non-empty, otherwise
// returns a built-in sample that demonstrates JSON, loose key-value, and
// validation-typed field resolution in one pass.
func buildRequest(path string) (parserequest.Request, error) {
	if path == "" {
		return sampleRequest(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return parserequest.Request{}, fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return parserequest.Request{}, fmt.Errorf("parse config: %w", err)
	}
	schema := make(map[string]parserequest.FieldSchema, len(fc.Schema))
	for key, fs := range fc.Schema {
		schema[key] = parserequest.FieldSchema{
			ValidationType: plan.ValidationType(fs.ValidationType),
			Description:    fs.Description,
			Required:       fs.Required,
			FallbackValue:  fs.FallbackValue,
		}
	}
	return parserequest.Request{
		InputData:    fc.InputData,
		Instructions: fc.Instructions,
		Schema:       schema,
		Options: parserequest.Options{
			Profile:  fc.Profile,
			Strategy: plan.Strategy(fc.Strategy),
		},
	}, nil
}

func sampleRequest() parserequest.Request {
	return parserequest.Request{
		InputData: `{"customer_name": "Jordan Alvarez"}
Order Total: $128.40
Contact Email: jordan.alvarez@example.com
Notes: expedited shipping requested`,
		Instructions: "Extract the customer's contact and order details.",
		Schema: map[string]parserequest.FieldSchema{
			"customer_name": {ValidationType: plan.ValidationName, Required: true},
			"email":         {ValidationType: plan.ValidationEmail, Description: "Contact Email", Required: true},
			"order_total":   {ValidationType: plan.ValidationCurrency, Description: "Order Total"},
			"notes":         {ValidationType: plan.ValidationString, Description: "Notes"},
		},
		Options: parserequest.Options{Strategy: plan.StrategySequential},
	}
}

func printResponse(resp parserequest.Response) {
	fmt.Println("success:", resp.Success)
	fmt.Println("confidence:", resp.Metadata.Confidence)
	fmt.Println("requestID:", resp.Metadata.RequestID)

	data, err := json.MarshalIndent(resp.ParsedData, "", "  ")
	if err == nil {
		fmt.Println("parsedData:", string(data))
	}

	if resp.Error != nil {
		fmt.Printf("error: [%s] %s\n", resp.Error.Code, resp.Error.Message)
	}
	for _, d := range resp.Metadata.Diagnostics {
		fmt.Printf("diagnostic: field=%s stage=%s severity=%s %s\n", d.Field, d.Stage, d.Severity, d.Message)
	}
}
