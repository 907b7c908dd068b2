// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package capro_test

import (
	"strings"
	"testing"

	"code.hybscloud.com/shmipc/capro"
)

func TestServiceDescription_Valid(t *testing.T) {
	valid := capro.ServiceDescription{Service: "a", Instance: "b", Event: "c"}
	if !valid.Valid() {
		t.Fatal("a/b/c should be valid")
	}
	if (capro.ServiceDescription{Instance: "b", Event: "c"}).Valid() {
		t.Fatal("missing Service should be invalid")
	}
	tooLong := strings.Repeat("x", 101)
	if (capro.ServiceDescription{Service: tooLong, Instance: "b", Event: "c"}).Valid() {
		t.Fatal("over-length Service should be invalid")
	}
}

func TestMessage_Constructors(t *testing.T) {
	svc := capro.ServiceDescription{Service: "a", Instance: "b", Event: "c"}

	sub := capro.NewSub(svc, 1, 42, 3)
	if sub.Type != capro.Sub || !sub.HasQueue || sub.QueueHandle != 42 || sub.HistoryRequest != 3 {
		t.Fatalf("NewSub produced unexpected message: %+v", sub)
	}

	ack := capro.NewAck(2, 7, true)
	if ack.Type != capro.Ack || ack.QueueHandle != 7 || !ack.HasQueue {
		t.Fatalf("NewAck produced unexpected message: %+v", ack)
	}

	nack := capro.NewNack(2)
	if nack.Type != capro.Nack || nack.HasQueue {
		t.Fatalf("NewNack produced unexpected message: %+v", nack)
	}

	if capro.Offer.String() != "OFFER" || capro.StopOffer.String() != "STOP_OFFER" {
		t.Fatal("MessageType.String() mismatch")
	}
}
