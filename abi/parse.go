package abi

import (
	"regexp"
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/riptide-sim/riptide/errors"
)

type funcSignature struct {
	params  []wit.Type
	results []wit.Type
}

// parseWitFunctions extracts function signatures from WIT text.
// Pattern: name: func(params) -> result;
func parseWitFunctions(witText string) (map[string]*funcSignature, error) {
	funcs := make(map[string]*funcSignature)

	funcPattern := regexp.MustCompile(`([a-zA-Z_][a-zA-Z0-9_-]*)\s*:\s*func\s*\(([^)]*)\)(?:\s*->\s*([^;]+))?`)

	matches := funcPattern.FindAllStringSubmatch(witText, -1)
	for _, match := range matches {
		name := match[1]
		paramsStr := strings.TrimSpace(match[2])
		resultStr := strings.TrimSpace(match[3])

		sig := &funcSignature{}

		if paramsStr != "" {
			for _, p := range strings.Split(paramsStr, ",") {
				typStr := p
				if idx := strings.LastIndex(p, ":"); idx != -1 {
					typStr = p[idx+1:]
				}
				t, err := parseWitType(typStr)
				if err != nil {
					return nil, errors.ParseFailed("param type "+strings.TrimSpace(typStr), err)
				}
				sig.params = append(sig.params, t)
			}
		}

		if resultStr != "" {
			t, err := parseWitType(resultStr)
			if err != nil {
				return nil, errors.ParseFailed("result type "+resultStr, err)
			}
			sig.results = []wit.Type{t}
		}

		funcs[name] = sig
	}

	if len(funcs) == 0 {
		return nil, errors.InvalidInput(errors.PhaseResolve, "no functions found in WIT text")
	}

	return funcs, nil
}

func parseWitType(s string) (wit.Type, error) {
	return wit.ParseType(strings.TrimSpace(s))
}
