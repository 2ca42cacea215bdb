package pricing

import (
	"fmt"
	"strings"
)

// CategoryAllowList restricts category and subcategory filters to known values.
// A nil or empty list allows everything; a category with no subcategories allows any subcategory.
type CategoryAllowList struct {
	categories map[string]map[string]struct{}
}

// NewCategoryAllowList builds an allow-list from category to subcategory names.
func NewCategoryAllowList(entries map[string][]string) CategoryAllowList {
	categories := make(map[string]map[string]struct{}, len(entries))
	for category, subs := range entries {
		key := allowKey(category)
		if key == "" {
			continue
		}
		set, ok := categories[key]
		if !ok {
			set = make(map[string]struct{}, len(subs))
			categories[key] = set
		}
		for _, sub := range subs {
			if subKey := allowKey(sub); subKey != "" {
				set[subKey] = struct{}{}
			}
		}
	}
	return CategoryAllowList{categories: categories}
}

// Empty reports whether no restriction is configured.
func (l CategoryAllowList) Empty() bool {
	return len(l.categories) == 0
}

// Check returns ErrCategoryNotAllowed when category or subcategory is outside the list.
// Blank values are not checked.
func (l CategoryAllowList) Check(category, subcategory string) error {
	if l.Empty() {
		return nil
	}
	cat := allowKey(category)
	sub := allowKey(subcategory)
	if cat == "" {
		if sub == "" {
			return nil
		}
		for _, subs := range l.categories {
			if _, ok := subs[sub]; ok || len(subs) == 0 {
				return nil
			}
		}
		return fmt.Errorf("%w: subcategory %q", ErrCategoryNotAllowed, subcategory)
	}
	subs, ok := l.categories[cat]
	if !ok {
		return fmt.Errorf("%w: category %q", ErrCategoryNotAllowed, category)
	}
	if sub == "" || len(subs) == 0 {
		return nil
	}
	if _, ok := subs[sub]; !ok {
		return fmt.Errorf("%w: subcategory %q in %q", ErrCategoryNotAllowed, subcategory, category)
	}
	return nil
}

func allowKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
