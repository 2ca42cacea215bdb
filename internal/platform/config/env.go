package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// envSource answers key lookups from, in priority order, explicit overrides, the process
// environment and a dotenv file. Parse failures are collected as invalid field names so Load
// reports them together.
type envSource struct {
	overrides map[string]string
	system    bool
	dotenv    map[string]string
	invalid   []string
}

func newEnvSource(opts loaderOptions) (*envSource, error) {
	dotenv, err := readDotEnv(opts.envFile)
	if err != nil {
		return nil, err
	}
	return &envSource{overrides: opts.envMap, system: opts.useSystemEnv, dotenv: dotenv}, nil
}

func (s *envSource) lookup(key string) (string, bool) {
	if value, ok := s.overrides[key]; ok {
		return value, true
	}
	if s.system {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
	}
	value, ok := s.dotenv[key]
	return value, ok
}

// raw returns the trimmed value for key, or "" when unset.
func (s *envSource) raw(key string) string {
	value, _ := s.lookup(key)
	return strings.TrimSpace(value)
}

// snapshot flattens every layer into one map with the same precedence as lookup.
func (s *envSource) snapshot() map[string]string {
	values := make(map[string]string, len(s.dotenv)+len(s.overrides))
	for key, value := range s.dotenv {
		values[key] = value
	}
	if s.system {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if ok && strings.TrimSpace(key) != "" {
				values[strings.TrimSpace(key)] = value
			}
		}
	}
	for key, value := range s.overrides {
		values[key] = value
	}
	return values
}

func (s *envSource) fail(field string) {
	s.invalid = append(s.invalid, field)
}

func (s *envSource) str(key, fallback string) string {
	if value := s.raw(key); value != "" {
		return value
	}
	return fallback
}

func (s *envSource) duration(field, key string, fallback time.Duration) time.Duration {
	value := s.raw(key)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		s.fail(field)
		return fallback
	}
	return d
}

func (s *envSource) integer(field, key string, fallback int) int {
	value := s.raw(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		s.fail(field)
		return fallback
	}
	return n
}

func (s *envSource) flag(field, key string, fallback bool) bool {
	value := s.raw(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		s.fail(field)
		return fallback
	}
	return b
}

// percent parses "12" or "12%".
func (s *envSource) percent(field, key, fallback string) decimal.Decimal {
	value, err := parsePercent(s.str(key, fallback))
	if err != nil {
		s.fail(field)
		return decimal.Zero
	}
	return value
}

// percentByName parses "apparel=5,premium=12%" into lower-cased names.
func (s *envSource) percentByName(field, key string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, entry := range splitList(s.raw(key)) {
		name, rawValue, ok := strings.Cut(entry, "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value, err := parsePercent(rawValue)
		if !ok || name == "" || err != nil {
			s.fail(field)
			return nil
		}
		out[name] = value
	}
	return out
}

// deliveryTiers parses "0:49,999:0" as minimum subtotal and fee pairs.
func (s *envSource) deliveryTiers(field, key string) []DeliveryTier {
	var tiers []DeliveryTier
	for _, entry := range splitList(s.raw(key)) {
		rawMin, rawFee, ok := strings.Cut(entry, ":")
		minimum, errMin := decimal.NewFromString(strings.TrimSpace(rawMin))
		fee, errFee := decimal.NewFromString(strings.TrimSpace(rawFee))
		if !ok || errMin != nil || errFee != nil || minimum.IsNegative() || fee.IsNegative() {
			s.fail(field)
			return nil
		}
		tiers = append(tiers, DeliveryTier{MinSubtotal: minimum, Fee: fee})
	}
	return tiers
}

// categories parses "sarees:silk|cotton,kurtas" into category to subcategory lists.
func (s *envSource) categories(key string) map[string][]string {
	out := make(map[string][]string)
	for _, entry := range splitList(s.raw(key)) {
		name, subs, _ := strings.Cut(entry, ":")
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		list := out[name]
		for _, sub := range strings.Split(subs, "|") {
			if sub = strings.TrimSpace(sub); sub != "" {
				list = append(list, sub)
			}
		}
		out[name] = list
	}
	return out
}

func parsePercent(raw string) (decimal.Decimal, error) {
	value, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(raw), "%"))
	if err != nil {
		return decimal.Zero, err
	}
	if value.IsNegative() {
		return decimal.Zero, fmt.Errorf("negative percentage %s", value)
	}
	return value, nil
}

func splitList(raw string) []string {
	var out []string
	for _, entry := range strings.Split(raw, ",") {
		if entry = strings.TrimSpace(entry); entry != "" {
			out = append(out, entry)
		}
	}
	return out
}

// readDotEnv reads KEY=value lines, tolerating comments, blank lines, an "export " prefix and
// quoted values. A missing file is not an error.
func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	file, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimPrefix(line, "export "), "=")
		if key = strings.TrimSpace(key); !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", path, err)
	}
	return values, nil
}
