package humanoid

import (
	"context"
	"fmt"
	"unicode"

	"github.com/chromedp/cdproto/input"
)

// KeyDispatcher delivers raw key events to a page.
type KeyDispatcher interface {
	DispatchKey(ctx context.Context, ev *input.DispatchKeyEventParams) error
}

// Virtual key codes for a US QWERTY layout.
var keyToVK = map[rune]int64{
	'a': 0x41, 'b': 0x42, 'c': 0x43, 'd': 0x44, 'e': 0x45, 'f': 0x46,
	'g': 0x47, 'h': 0x48, 'i': 0x49, 'j': 0x4A, 'k': 0x4B, 'l': 0x4C,
	'm': 0x4D, 'n': 0x4E, 'o': 0x4F, 'p': 0x50, 'q': 0x51, 'r': 0x52,
	's': 0x53, 't': 0x54, 'u': 0x55, 'v': 0x56, 'w': 0x57, 'x': 0x58,
	'y': 0x59, 'z': 0x5A,
	'0': 0x30, '1': 0x31, '2': 0x32, '3': 0x33, '4': 0x34,
	'5': 0x35, '6': 0x36, '7': 0x37, '8': 0x38, '9': 0x39,
	' ': 0x20,
	';': 0xBA, '=': 0xBB, ',': 0xBC, '-': 0xBD, '.': 0xBE, '/': 0xBF,
	'`': 0xC0, '[': 0xDB, '\\': 0xDC, ']': 0xDD, '\'': 0xDE,
}

// shiftedBase maps shifted punctuation to the key that produces it.
var shiftedBase = map[rune]rune{
	'!': '1', '@': '2', '#': '3', '$': '4', '%': '5', '^': '6',
	'&': '7', '*': '8', '(': '9', ')': '0', '_': '-', '+': '=',
	'{': '[', '}': ']', '|': '\\', ':': ';', '"': '\'', '<': ',',
	'>': '.', '?': '/', '~': '`',
}

func needsShift(key rune) bool {
	if unicode.IsLetter(key) && unicode.IsUpper(key) {
		return true
	}
	_, ok := shiftedBase[key]
	return ok
}

func virtualKey(key rune) int64 {
	if base, ok := shiftedBase[key]; ok {
		key = base
	}
	return keyToVK[unicode.ToLower(key)]
}

// Type sends text one character at a time, holding each key briefly and
// pausing between keystrokes.
func (h *Humanoid) Type(ctx context.Context, d KeyDispatcher, text string) error {
	for _, r := range text {
		if err := h.sendKey(ctx, d, r); err != nil {
			return err
		}
		if err := h.Pause(ctx, h.cfg.KeyDelay); err != nil {
			return err
		}
	}
	return nil
}

// PressEnter sends a full Enter keystroke.
func (h *Humanoid) PressEnter(ctx context.Context, d KeyDispatcher) error {
	down := input.DispatchKeyEvent(input.KeyDown).
		WithKey("Enter").
		WithCode("Enter").
		WithWindowsVirtualKeyCode(0x0D).
		WithText("\r")
	if err := d.DispatchKey(ctx, down); err != nil {
		return fmt.Errorf("humanoid: keydown failed for Enter: %w", err)
	}
	if err := h.Pause(ctx, h.cfg.KeyHold); err != nil {
		_ = d.DispatchKey(context.Background(), enterUp())
		return err
	}
	if err := d.DispatchKey(ctx, enterUp()); err != nil {
		return fmt.Errorf("humanoid: keyup failed for Enter: %w", err)
	}
	return nil
}

func enterUp() *input.DispatchKeyEventParams {
	return input.DispatchKeyEvent(input.KeyUp).
		WithKey("Enter").
		WithCode("Enter").
		WithWindowsVirtualKeyCode(0x0D)
}

// sendKey dispatches keyDown, holds, then keyUp. keyUp is still sent if the
// hold is interrupted so the page is never left with a stuck key.
func (h *Humanoid) sendKey(ctx context.Context, d KeyDispatcher, key rune) error {
	text := string(key)
	var modifiers input.Modifier
	if needsShift(key) {
		modifiers = input.ModifierShift
	}
	keyCode := virtualKey(key)

	down := input.DispatchKeyEvent(input.KeyDown).
		WithModifiers(modifiers).
		WithWindowsVirtualKeyCode(keyCode).
		WithKey(text).
		WithText(text)
	if err := d.DispatchKey(ctx, down); err != nil {
		return fmt.Errorf("humanoid: keydown failed for %q: %w", key, err)
	}

	up := input.DispatchKeyEvent(input.KeyUp).
		WithModifiers(modifiers).
		WithWindowsVirtualKeyCode(keyCode).
		WithKey(text)

	if err := h.Pause(ctx, h.cfg.KeyHold); err != nil {
		_ = d.DispatchKey(context.Background(), up)
		return err
	}
	if err := d.DispatchKey(ctx, up); err != nil {
		return fmt.Errorf("humanoid: keyup failed for %q: %w", key, err)
	}
	return nil
}
