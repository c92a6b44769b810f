// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package export writes result tables in the column layout of the
// original ranking tool: id, query, pred_score, faiss_distance, cosine_sim,
// candidate_original_ids, query_original_id, num_all_searches.
//
// Per-candidate columns are maps keyed by the candidate's original text,
// in rank order.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/poiesic/candirank/core"
)

// Format selects the output encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
)

// Columns in output order.
var Columns = []string{
	"id",
	"query",
	"pred_score",
	"faiss_distance",
	"cosine_sim",
	"candidate_original_ids",
	"query_original_id",
	"num_all_searches",
}

// ErrUnknownFormat is returned for formats other than yaml and csv.
var ErrUnknownFormat = errors.New("unknown export format")

// ParseFormat parses a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(name))); f {
	case FormatYAML, FormatCSV:
		return f, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
}

// Write encodes table to w in format.
func Write(w io.Writer, format Format, table *core.ResultTable) error {
	switch format {
	case FormatYAML:
		return WriteYAML(w, table)
	case FormatCSV:
		return WriteCSV(w, table)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, string(format))
}

// WriteYAML writes the table as a YAML sequence of rows.
func WriteYAML(w io.Writer, table *core.ResultTable) error {
	doc := &yaml.Node{Kind: yaml.SequenceNode}
	for _, r := range table.All() {
		doc.Content = append(doc.Content, yamlRow(&r))
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

// WriteCSV writes a header and one record per row. Map columns are JSON
// objects with keys in rank order. Non-finite scores are written as null.
func WriteCSV(w io.Writer, table *core.ResultTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	columns := []func(core.Match) any{
		func(m core.Match) any {
			if m.Confidence == nil {
				return nil
			}
			return jsonFloat(*m.Confidence)
		},
		func(m core.Match) any { return jsonFloat(m.FaissDistance) },
		func(m core.Match) any { return jsonFloat(m.CosineSimilarity) },
		func(m core.Match) any { return uint64(m.CandidateID) },
	}
	for _, r := range table.All() {
		record := []string{strconv.FormatUint(uint64(r.QueryID), 10), r.Query}
		for _, value := range columns {
			cell, err := jsonMap(r.Matches, value)
			if err != nil {
				return fmt.Errorf("query %d: %w", r.QueryID, err)
			}
			record = append(record, cell)
		}
		record = append(record,
			strconv.FormatUint(uint64(r.QueryID), 10),
			strconv.Itoa(r.NumSearched),
		)
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func yamlRow(r *core.QueryResult) *yaml.Node {
	row := &yaml.Node{Kind: yaml.MappingNode}
	add := func(key string, value *yaml.Node) {
		row.Content = append(row.Content, scalar("!!str", key), value)
	}

	id := strconv.FormatUint(uint64(r.QueryID), 10)
	add("id", scalar("!!int", id))
	add("query", scalar("!!str", r.Query))
	add("pred_score", yamlMap(r.Matches, func(m core.Match) *yaml.Node {
		if m.Confidence == nil {
			return scalar("!!null", "null")
		}
		return floatNode(*m.Confidence)
	}))
	add("faiss_distance", yamlMap(r.Matches, func(m core.Match) *yaml.Node {
		return floatNode(m.FaissDistance)
	}))
	add("cosine_sim", yamlMap(r.Matches, func(m core.Match) *yaml.Node {
		return floatNode(m.CosineSimilarity)
	}))
	add("candidate_original_ids", yamlMap(r.Matches, func(m core.Match) *yaml.Node {
		return scalar("!!int", strconv.FormatUint(uint64(m.CandidateID), 10))
	}))
	add("query_original_id", scalar("!!int", id))
	add("num_all_searches", scalar("!!int", strconv.Itoa(r.NumSearched)))
	return row
}

func yamlMap(matches []core.Match, value func(core.Match) *yaml.Node) *yaml.Node {
	n := &yaml.Node{Kind: yaml.MappingNode, Style: yaml.FlowStyle}
	if len(matches) > 0 {
		n.Style = 0
	}
	for _, m := range matches {
		n.Content = append(n.Content, scalar("!!str", m.Candidate), value(m))
	}
	return n
}

func scalar(tag, value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value}
}

// floatNode renders v as a YAML 1.2 float, using .inf, -.inf and .nan for
// non-finite values.
func floatNode(v float64) *yaml.Node {
	switch {
	case math.IsNaN(v):
		return scalar("!!float", ".nan")
	case math.IsInf(v, 1):
		return scalar("!!float", ".inf")
	case math.IsInf(v, -1):
		return scalar("!!float", "-.inf")
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return scalar("!!float", s)
}

// jsonFloat maps non-finite values to null, which JSON can represent.
func jsonFloat(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}

func jsonMap(matches []core.Match, value func(core.Match) any) (string, error) {
	var b strings.Builder
	b.WriteByte('{')
	for i, m := range matches {
		if i > 0 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(m.Candidate)
		if err != nil {
			return "", err
		}
		val, err := json.Marshal(value(m))
		if err != nil {
			return "", fmt.Errorf("candidate %q: %w", m.Candidate, err)
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(val)
	}
	b.WriteByte('}')
	return b.String(), nil
}
