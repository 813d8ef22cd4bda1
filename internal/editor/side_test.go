package editor

import (
	"errors"
	"testing"

	"pairStudio/internal/content"
)

func TestSideTransitions(t *testing.T) {
	idle := Side{Phase: PhaseIdle}

	next, req, err := idle.apply(pickEvent{item: bg(1)})
	if err != nil || req != nil || next.Phase != PhaseAwaiting || next.Held.ID != 1 {
		t.Fatalf("background pick: %+v %+v %v", next, req, err)
	}

	replaced, req, err := next.apply(pickEvent{item: bg(5)})
	if err != nil || req != nil || replaced.Held.ID != 5 {
		t.Fatalf("picking the held kind again should replace it: %+v %v", replaced, err)
	}

	_, req, err = replaced.apply(pickEvent{item: text(2)})
	if err != nil || req == nil || req.background.ID != 5 || req.text.ID != 2 {
		t.Fatalf("complement pick should request composition: %+v %v", req, err)
	}

	if _, _, err := replaced.apply(pickEvent{item: card(3)}); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("complete card while awaiting should be illegal, got %v", err)
	}

	committed, _, err := replaced.apply(committedEvent{subPair: SubPair{ID: 9}})
	if err != nil || committed.Phase != PhaseCommitted || committed.Value.SubPair.ID != 9 || committed.Held != nil {
		t.Fatalf("commit: %+v %v", committed, err)
	}
	if committed.Kind() != content.KindComposite {
		t.Fatalf("committed sub-pair kind = %s", committed.Kind())
	}

	if _, _, err := committed.apply(committedEvent{subPair: SubPair{ID: 10}}); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("commit outside awaiting should be illegal")
	}
	if _, _, err := idle.apply(cancelEvent{}); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("cancel on idle should be illegal")
	}
}

func TestSideDirectPicks(t *testing.T) {
	idle := Side{Phase: PhaseIdle}

	s, req, err := idle.apply(pickEvent{item: text(2)})
	if err != nil || req != nil || s.Phase != PhaseCommitted || s.Value.Item.ID != 2 {
		t.Fatalf("plain text pick should commit directly: %+v %v", s, err)
	}

	s, _, err = idle.apply(pickEvent{item: text(2), compose: true})
	if err != nil || s.Phase != PhaseAwaiting {
		t.Fatalf("text pick with compose should await a background: %+v %v", s, err)
	}

	if _, _, err := idle.apply(pickEvent{item: card(3), compose: true}); !errors.Is(err, ErrNotComposable) {
		t.Fatalf("expected ErrNotComposable, got %v", err)
	}

	s, _, err = idle.apply(pickEvent{item: card(3)})
	if err != nil || s.Phase != PhaseCommitted || s.Kind() != content.KindImage {
		t.Fatalf("complete card pick: %+v %v", s, err)
	}
}

func TestCancelRestoresPreviousValue(t *testing.T) {
	prev := &SideValue{Item: &content.Item{ID: 7, ElementType: content.ElementCompleteCard}}
	committed := Side{Phase: PhaseCommitted, Value: prev}

	awaiting, _, err := committed.apply(pickEvent{item: bg(1)})
	if err != nil || awaiting.Phase != PhaseAwaiting {
		t.Fatalf("re-pick: %+v %v", awaiting, err)
	}

	restored, _, err := awaiting.apply(cancelEvent{})
	if err != nil || restored.Phase != PhaseCommitted || restored.Value.Item.ID != 7 || restored.Held != nil {
		t.Fatalf("cancel should restore previous value: %+v %v", restored, err)
	}

	fresh, _, _ := Side{Phase: PhaseIdle}.apply(pickEvent{item: bg(1)})
	back, _, err := fresh.apply(cancelEvent{})
	if err != nil || back.Phase != PhaseIdle || back.Value != nil || back.Held != nil {
		t.Fatalf("cancel from idle-origin should return to idle: %+v %v", back, err)
	}
}

func TestParseSide(t *testing.T) {
	for raw, want := range map[string]SideID{"a": SideA, "B": SideB, "0": SideA, "1": SideB} {
		got, err := ParseSide(raw)
		if err != nil || got != want {
			t.Fatalf("ParseSide(%q) = %v, %v", raw, got, err)
		}
	}
	if _, err := ParseSide("c"); !errors.Is(err, ErrUnknownSide) {
		t.Fatalf("expected ErrUnknownSide, got %v", err)
	}
}
