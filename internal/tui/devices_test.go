// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"hapsync/internal/audio"
)

func testDevices() []audio.Device {
	return []audio.Device{
		{ID: 0, Name: "Built-in Output", MaxOutputChannels: 2, DefaultSampleRate: 48000},
		{ID: 3, Name: "USB Shaker", MaxOutputChannels: 2, DefaultSampleRate: 44100},
	}
}

func update(t *testing.T, m DeviceListModel, msg tea.Msg) (DeviceListModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	dm, ok := next.(DeviceListModel)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return dm, cmd
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestDeviceListSelection(t *testing.T) {
	m := NewDeviceListModel(func() ([]audio.Device, error) { return testDevices(), nil })

	msg := m.Init()()
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 100, Height: 30})
	m, _ = update(t, m, msg)

	if !strings.Contains(m.View(), "USB Shaker") {
		t.Fatalf("view missing device:\n%s", m.View())
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.activeScreen != ConfigScreen {
		t.Fatal("enter did not open the config screen")
	}
	if !strings.Contains(m.View(), "45 Hz") {
		t.Errorf("config view:\n%s", m.View())
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !isQuit(cmd) {
		t.Error("confirm did not quit")
	}
	sel, ok := m.Selection()
	if !ok {
		t.Fatal("no selection")
	}
	if sel.Device.ID != 3 || sel.Frequency != 50 {
		t.Errorf("selection = %+v", sel)
	}
}

func TestDeviceListBackAndQuit(t *testing.T) {
	m := NewDeviceListModel(func() ([]audio.Device, error) { return testDevices(), nil })
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = update(t, m, devicesMsg{testDevices()})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.activeScreen != ListScreen {
		t.Error("esc did not return to the list")
	}

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !isQuit(cmd) {
		t.Error("q did not quit")
	}
	if _, ok := m.Selection(); ok {
		t.Error("quit produced a selection")
	}
}

func TestDeviceListEmptyAndError(t *testing.T) {
	m := NewDeviceListModel(func() ([]audio.Device, error) { return nil, nil })
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})
	m, _ = update(t, m, m.Init()())
	if !strings.Contains(m.View(), "No audio output devices") {
		t.Errorf("empty view:\n%s", m.View())
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.activeScreen != ListScreen {
		t.Error("enter with no devices left the list")
	}

	failing := NewDeviceListModel(func() ([]audio.Device, error) { return nil, errors.New("portaudio not initialized") })
	failing, _ = update(t, failing, failing.Init()())
	if !strings.Contains(failing.View(), "portaudio not initialized") {
		t.Errorf("error view = %q", failing.View())
	}
}
