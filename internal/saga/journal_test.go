package saga

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
)

func TestFileJournal_AppendAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transitions.log")

	journal, err := NewFileJournal(path)
	if err != nil {
		t.Fatalf("NewFileJournal: %v", err)
	}
	t.Cleanup(func() {
		if err := journal.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	})

	orderID := uuid.New()
	entries := []TransitionEntry{
		{CorrelationID: orderID, Event: "order.submitted", From: StateInitial, To: StateProcessingPayment, At: testNow},
		{CorrelationID: orderID, Event: "payment.approved", From: StateProcessingPayment, To: StateReservingInventory, At: testNow},
	}
	for _, entry := range entries {
		if err := journal.Append(entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var read []TransitionEntry
	for scanner.Scan() {
		var entry TransitionEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		read = append(read, entry)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(read) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(read))
	}
	if read[0].To != StateProcessingPayment || read[1].To != StateReservingInventory {
		t.Fatalf("unexpected entries: %+v", read)
	}
}
