package schema

import (
	"errors"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"

	"trino-ingest/internal/domain"
)

const detailSeparator = " := "

type planOutput struct {
	symbol   string
	typeName string
}

// parsePlan extracts the output columns of the first stage of an
// EXPLAIN (FORMAT JSON) document. Names come from the stage's details
// ("name := symbol") or, when there are none, from the symbols themselves.
func parsePlan(plan []byte) ([]OutputColumn, error) {
	stage, err := firstStage(plan)
	if err != nil {
		return nil, err
	}

	outputs, err := stageOutputs(stage)
	if err != nil {
		return nil, err
	}
	details, err := stageDetails(stage)
	if err != nil {
		return nil, err
	}
	if len(details) > 0 && len(details) != len(outputs) {
		return nil, domain.ErrPlan("%d outputs but %d details", len(outputs), len(details))
	}

	columns := make([]OutputColumn, len(outputs))
	for i, out := range outputs {
		name := out.symbol
		if len(details) > 0 {
			left, right, ok := strings.Cut(details[i], detailSeparator)
			if !ok {
				return nil, domain.ErrPlan("detail %q has no %q", details[i], strings.TrimSpace(detailSeparator))
			}
			if right != out.symbol {
				return nil, domain.ErrPlan("detail %q does not refer to symbol %q", details[i], out.symbol)
			}
			name = left
		}
		wt, err := ResolveType(out.typeName)
		if err != nil {
			return nil, err
		}
		columns[i] = OutputColumn{Name: name, Type: wt, RawType: out.typeName}
	}
	return columns, nil
}

// firstStage returns the fragment under the lowest numeric top-level key.
func firstStage(plan []byte) ([]byte, error) {
	var (
		stage []byte
		best  = -1
	)
	err := jsonparser.ObjectEach(plan, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		n, convErr := strconv.Atoi(string(key))
		if convErr != nil || n < 0 || dataType != jsonparser.Object {
			return nil
		}
		if best < 0 || n < best {
			best, stage = n, value
		}
		return nil
	})
	if err != nil {
		return nil, domain.ErrPlan("not a JSON object: %v", err)
	}
	if stage == nil {
		return nil, domain.ErrPlan("no stages")
	}
	return stage, nil
}

func stageOutputs(stage []byte) ([]planOutput, error) {
	raw, dataType, _, err := jsonparser.Get(stage, "outputs")
	if err != nil || dataType != jsonparser.Array {
		return nil, domain.ErrPlan("first stage has no outputs")
	}
	var (
		outputs []planOutput
		iterErr error
	)
	_, err = jsonparser.ArrayEach(raw, func(value []byte, _ jsonparser.ValueType, _ int, _ error) {
		if iterErr != nil {
			return
		}
		symbol, err := jsonparser.GetString(value, "symbol")
		if err != nil {
			iterErr = domain.ErrPlan("output %d has no symbol", len(outputs))
			return
		}
		typeName, err := jsonparser.GetString(value, "type")
		if err != nil {
			iterErr = domain.ErrPlan("output %q has no type", symbol)
			return
		}
		outputs = append(outputs, planOutput{symbol: symbol, typeName: typeName})
	})
	if iterErr != nil {
		return nil, iterErr
	}
	if err != nil {
		return nil, domain.ErrPlan("malformed outputs: %v", err)
	}
	return outputs, nil
}

func stageDetails(stage []byte) ([]string, error) {
	raw, dataType, _, err := jsonparser.Get(stage, "details")
	if errors.Is(err, jsonparser.KeyPathNotFoundError) || dataType == jsonparser.Null {
		return nil, nil
	}
	if err != nil || dataType != jsonparser.Array {
		return nil, domain.ErrPlan("details is not an array")
	}
	var (
		details []string
		iterErr error
	)
	_, err = jsonparser.ArrayEach(raw, func(value []byte, dt jsonparser.ValueType, _ int, _ error) {
		if iterErr != nil {
			return
		}
		if dt != jsonparser.String {
			iterErr = domain.ErrPlan("detail %d is not a string", len(details))
			return
		}
		s, err := jsonparser.ParseString(value)
		if err != nil {
			iterErr = domain.ErrPlan("detail %d: %v", len(details), err)
			return
		}
		details = append(details, s)
	})
	if iterErr != nil {
		return nil, iterErr
	}
	if err != nil {
		return nil, domain.ErrPlan("malformed details: %v", err)
	}
	return details, nil
}
