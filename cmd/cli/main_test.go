package main

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func press(m tea.Model, key tea.KeyType) tea.Model {
	next, _ := m.Update(tea.KeyMsg{Type: key})
	return next
}

func TestModelNavigation(t *testing.T) {
	var m tea.Model = initialModel(nil, []string{"P1", "P2"})

	m = press(m, tea.KeyDown)
	m = press(m, tea.KeyDown)
	m = press(m, tea.KeyRight)
	m = press(m, tea.KeyRight)
	m = press(m, tea.KeyLeft)

	got := m.(model)
	if got.selectedPrd != 1 || got.selectedScn != 1 {
		t.Errorf("unexpected selection product=%d scenario=%d", got.selectedPrd, got.selectedScn)
	}
	if !strings.Contains(got.View(), "> P2") || !strings.Contains(got.View(), "* track") {
		t.Errorf("view does not reflect selection:\n%s", got.View())
	}
}

func TestModelRemembersLastOrder(t *testing.T) {
	var m tea.Model = initialModel(nil, []string{"P1"})

	m, _ = m.Update(scenarioResult{status: "Order placed", orderNumber: "ORD-20261017-0001"})
	m, _ = m.Update(scenarioResult{status: "Track failed"})

	got := m.(model)
	if got.lastOrder != "ORD-20261017-0001" || got.status != "Track failed" || got.busy {
		t.Errorf("unexpected model %+v", got)
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" P1, ,P2,")
	if len(got) != 2 || got[0] != "P1" || got[1] != "P2" {
		t.Errorf("unexpected ids %v", got)
	}
}
