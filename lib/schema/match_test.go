// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "testing"

func TestItemListForms(t *testing.T) {
	list, err := CompileItemList([]string{
		"/favicon.ico",
		"/assets/",
		`re:\.woff2?$`,
	})
	if err != nil {
		t.Fatalf("CompileItemList: %v", err)
	}

	tests := []struct {
		path string
		want bool
	}{
		{"/favicon.ico", true},
		{"/favicon.ico.bak", false},
		{"/assets/app.css", true},
		{"/assets/deep/nested.js", true},
		{"/assets", false},
		{"/fonts/inter.woff2", true},
		{"/fonts/inter.woff", true},
		{"/fonts/inter.ttf", false},
	}
	for _, test := range tests {
		if got := list.Match(test.path); got != test.want {
			t.Errorf("Match(%q) = %v, want %v", test.path, got, test.want)
		}
	}
}

func TestItemListBadRegexp(t *testing.T) {
	if _, err := CompileItemList([]string{"re:["}); err == nil {
		t.Fatal("CompileItemList accepted an invalid regular expression")
	}
}

func TestItemListNilMatchesNothing(t *testing.T) {
	var list *ItemList
	if list.Match("/anything") {
		t.Error("nil ItemList matched a path")
	}
	if list.Len() != 0 {
		t.Errorf("nil ItemList Len = %d, want 0", list.Len())
	}
}

func TestItemListEmpty(t *testing.T) {
	list, err := CompileItemList(nil)
	if err != nil {
		t.Fatalf("CompileItemList(nil): %v", err)
	}
	if list.Match("/index.html") {
		t.Error("empty ItemList matched a path")
	}
}
