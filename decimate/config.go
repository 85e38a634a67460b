// Package decimate implements the CIC + compensation FIR decimation stage
// of spec §2 item 5: an independent reserved reader of the FA circular
// buffer that produces a second, lower-rate live buffer for the subscribe
// engine. The filter coefficients themselves are out of scope (spec §1,
// "the CIC/FIR decimation DSP coefficients (treated as a black-box
// filter)"); this package implements the pipeline stage around them.
package decimate

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/dls-controls/fa-archiver/errs"
)

// Config is the decimator's own configuration, distinct from the archive's
// first/second decimation log2 fields (spec §6, "Configuration file
// (decimator only)").
type Config struct {
	DecimationFactor   int
	HistoryLength      []int
	CompensationFilter []float64
	FilterDecimation   int
	OutputSampleCount  int
	OutputBlockCount   int
}

// ParseConfig reads the decimator's bespoke name=value line format. No
// library in the retrieval pack parses this exact shape (it is neither INI,
// YAML, nor flag-style), so this is hand-parsed against the standard
// library's bufio.Scanner (see DESIGN.md).
func ParseConfig(r io.Reader) (Config, error) {
	var cfg Config
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok {
			return Config{}, errs.ErrBadRequest
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)

		switch name {
		case "decimation_factor":
			v, err := strconv.Atoi(value)
			if err != nil {
				return Config{}, errs.ErrBadRequest
			}
			cfg.DecimationFactor = v
		case "filter_decimation":
			v, err := strconv.Atoi(value)
			if err != nil {
				return Config{}, errs.ErrBadRequest
			}
			cfg.FilterDecimation = v
		case "output_sample_count":
			v, err := strconv.Atoi(value)
			if err != nil {
				return Config{}, errs.ErrBadRequest
			}
			cfg.OutputSampleCount = v
		case "output_block_count":
			v, err := strconv.Atoi(value)
			if err != nil {
				return Config{}, errs.ErrBadRequest
			}
			cfg.OutputBlockCount = v
		case "history_length":
			ints, err := parseIntList(value)
			if err != nil {
				return Config{}, err
			}
			cfg.HistoryLength = ints
		case "compensation_filter":
			floats, err := parseFloatList(value)
			if err != nil {
				return Config{}, err
			}
			cfg.CompensationFilter = floats
		default:
			return Config{}, errs.ErrBadRequest
		}
	}
	if err := sc.Err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseIntList(s string) ([]int, error) {
	fields := strings.Split(s, ",")
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, errs.ErrBadRequest
		}
		out = append(out, v)
	}
	return out, nil
}

func parseFloatList(s string) ([]float64, error) {
	fields := strings.Split(s, ",")
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, errs.ErrBadRequest
		}
		out = append(out, v)
	}
	return out, nil
}
