package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/sidesync/internal/ir"
)

// OplogSnapshot captures what a scenario wrote: the outcome of each
// transaction and the resulting oplog.
type OplogSnapshot struct {
	ScenarioName string
	Transactions []TxnOutcome
	Oplog        []ir.OpLogEntry
}

// toValue converts the snapshot to an ir.Value for canonical JSON.
// Abort messages are left out so that rewording an error does not churn
// every golden file; the oplog is what the snapshot pins down.
func (s *OplogSnapshot) toValue() ir.Value {
	txns := make(ir.Array, len(s.Transactions))
	for i, o := range s.Transactions {
		txns[i] = ir.NewRecord(ir.F("committed", ir.Bool(o.Committed)))
	}

	entries := make(ir.Array, len(s.Oplog))
	for i, e := range s.Oplog {
		entries[i] = e.Record()
	}

	return ir.NewRecord(
		ir.F("scenario_name", ir.String(s.ScenarioName)),
		ir.F("transactions", txns),
		ir.F("oplog", entries),
	)
}

// Snapshot returns the canonical JSON golden files hold for a result.
func Snapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := OplogSnapshot{
		ScenarioName: scenarioName,
		Transactions: result.Transactions,
		Oplog:        result.Oplog,
	}
	return ir.MarshalCanonical(snapshot.toValue())
}

// RunWithGolden executes a scenario and compares its oplog against a golden
// file stored in testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the oplog doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}

	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
