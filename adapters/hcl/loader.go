// Package hcl loads landed-cost models from HCL definition files.
package hcl

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"landed-cost/core/lookup"
	"landed-cost/core/model"
	"landed-cost/core/types"
	"landed-cost/internal/errors"
	"landed-cost/internal/logging"
)

// Extension is the model file extension
const Extension = ".hcl"

// Loader parses model files
type Loader struct {
	parser *hclparse.Parser
}

// NewLoader creates a loader
func NewLoader() *Loader {
	return &Loader{parser: hclparse.NewParser()}
}

// Load reads a model from a file, or from every .hcl file below a
// directory in lexical order
func (l *Loader) Load(path string) (*model.Model, error) {
	files, err := findFiles(path)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Newf(errors.TypeInput, "no %s model files in %s", Extension, path)
	}

	m := model.New()
	for _, file := range files {
		src, err := os.ReadFile(file)
		if err != nil {
			return nil, errors.Wrap(errors.TypeInput, "failed to read model file", err).WithContext("file", file)
		}
		part, err := l.parse(src, file)
		if err != nil {
			return nil, err
		}
		m.Merge(part)
	}

	costs, labor, volumes := m.Costs.Len()
	logging.Debug("model loaded",
		zap.Strings("files", files),
		zap.Int("entities", len(m.Entities)),
		zap.Int("products", len(m.BOM)),
		zap.Int("rules", len(m.Rules)),
		zap.Int("costs", costs),
		zap.Int("labor", labor),
		zap.Int("volumes", volumes),
		zap.Int("rates", m.Rates.Len()))
	return m, nil
}

// Parse decodes one model file held in memory
func (l *Loader) Parse(src []byte, filename string) (*model.Model, error) {
	return l.parse(src, filename)
}

func (l *Loader) parse(src []byte, filename string) (*model.Model, error) {
	file, diags := l.parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diagError("failed to parse model file", filename, diags)
	}

	var schema fileSchema
	if diags := gohcl.DecodeBody(file.Body, nil, &schema); diags.HasErrors() {
		return nil, diagError("failed to decode model file", filename, diags)
	}

	m := model.New()
	m.Sources = []string{filename}
	b := &builder{m: m}
	b.periods(schema.Periods)
	for _, blk := range schema.Entities {
		b.entity(blk)
	}
	for _, blk := range schema.Routes {
		b.route(blk)
	}
	for _, blk := range schema.Products {
		b.product(blk)
	}
	for _, blk := range schema.Rules {
		b.rule(blk)
	}
	for _, blk := range schema.Costs {
		b.cost(blk)
	}
	for _, blk := range schema.Labor {
		b.labor(blk)
	}
	for _, blk := range schema.Volumes {
		b.volume(blk)
	}
	for _, blk := range schema.Rates {
		b.rate(blk)
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// builder converts decoded blocks, keeping the first error
type builder struct {
	m   *model.Model
	err error
}

func (b *builder) fail(rng hcl.Range, format string, args ...any) {
	if b.err != nil {
		return
	}
	b.err = errors.Newf(errors.TypeParsing, format, args...).
		WithContext("file", rng.Filename).
		WithContext("line", rng.Start.Line)
}

func (b *builder) decimal(rng hcl.Range, name, s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		b.fail(rng, "%s: %q is not a number", name, s)
	}
	return d
}

func (b *builder) period(rng hcl.Range, s string) types.Period {
	p, err := types.ParsePeriod(s)
	if err != nil {
		b.fail(rng, "%v", err)
	}
	return p
}

func (b *builder) periods(ps []string) {
	for _, p := range ps {
		b.m.Periods = append(b.m.Periods, b.period(hcl.Range{}, p))
	}
}

func (b *builder) entity(blk *entityBlk) {
	t, err := types.ParseEntityType(blk.Type)
	if err != nil {
		b.fail(blk.Range, "entity %s: %v", blk.ID, err)
		return
	}
	b.m.Entities = append(b.m.Entities, types.Entity{
		ID:       types.EntityID(blk.ID),
		Type:     t,
		Country:  strings.ToUpper(blk.Country),
		Currency: types.Currency(strings.ToUpper(blk.Currency)),
	})
}

func (b *builder) route(blk *routeBlk) {
	mt, err := types.ParseMarkupType(blk.MarkupType)
	if err != nil {
		b.fail(blk.Range, "route %s -> %s: %v", blk.From, blk.To, err)
		return
	}
	b.m.Routes = append(b.m.Routes, types.Route{
		From:        types.EntityID(blk.From),
		To:          types.EntityID(blk.To),
		MarkupType:  mt,
		MarkupValue: blk.MarkupValue,
		ItemTypes:   blk.ItemTypes,
	})
}

func (b *builder) product(blk *productBlk) {
	entry := types.BOMEntry{ProductID: types.ProductID(blk.ID)}
	for _, c := range blk.Components {
		entry.Components = append(entry.Components, types.Component{
			ItemID:    types.ProductID(c.Item),
			Quantity:  decimal.NewFromFloat(c.Quantity),
			ScrapRate: decimal.NewFromFloat(c.ScrapRate),
			Unit:      c.Unit,
		})
	}
	b.m.BOM = append(b.m.BOM, entry)
}

func (b *builder) cost(blk *costBlk) {
	b.m.Costs.SetCost(types.ProductID(blk.Item), types.EntityID(blk.Entity), b.period(blk.Range, blk.Period), lookup.UnitCost{
		Unit:     b.decimal(blk.Range, "unit_cost", blk.UnitCost),
		Currency: types.Currency(strings.ToUpper(blk.Currency)),
	})
}

func (b *builder) labor(blk *laborBlk) {
	b.m.Costs.SetLabor(types.ProductID(blk.Product), types.EntityID(blk.Entity), b.period(blk.Range, blk.Period), lookup.Labor{
		Hours:    b.decimal(blk.Range, "hours", blk.Hours),
		Rate:     b.decimal(blk.Range, "rate", blk.Rate),
		Currency: types.Currency(strings.ToUpper(blk.Currency)),
	})
}

func (b *builder) volume(blk *volumeBlk) {
	b.m.Costs.SetVolume(types.ProductID(blk.Product), types.EntityID(blk.Entity), b.period(blk.Range, blk.Period),
		b.decimal(blk.Range, "units", blk.Units))
}

func (b *builder) rate(blk *rateBlk) {
	b.m.Rates.Set(types.Currency(strings.ToUpper(blk.From)), types.Currency(strings.ToUpper(blk.To)),
		b.period(blk.Range, blk.Period), b.decimal(blk.Range, "rate", blk.Rate))
}

func diagError(msg, filename string, diags hcl.Diagnostics) error {
	line := 0
	for _, d := range diags {
		if d.Severity == hcl.DiagError && d.Subject != nil {
			line = d.Subject.Start.Line
			break
		}
	}
	return errors.Wrap(errors.TypeParsing, msg, diags).
		WithContext("file", filename).
		WithContext("line", line)
}

// findFiles returns path itself, or the model files below it sorted
func findFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(errors.TypeInput, "model path not accessible", err).WithContext("path", path)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, Extension) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(errors.TypeInput, "failed to walk model directory", err).WithContext("path", path)
	}
	sort.Strings(files)
	return files, nil
}
