package hl7v2

import (
	"fmt"
	"strings"
	"time"
)

// Acknowledgment codes for MSA-1.
const (
	AckAccept = "AA"
	AckError  = "AE"
)

// BuildACK builds an HL7 v2 acknowledgment for the given message. The MSH
// header echoes the original with sender and receiver reversed, and MSA
// carries the ack code and the original control id.
func BuildACK(original *Message, code, text string) []byte {
	now := time.Now().UTC().Format("20060102150405")
	controlID := fmt.Sprintf("ACK%s", time.Now().UTC().Format("20060102150405.000"))

	sendingApp, sendingFac := "LABCORE", "LabCore"
	receivingApp, receivingFac := "", ""
	originalControlID := ""
	if original != nil {
		// Reverse the direction of the original message.
		if original.ReceivingApp != "" {
			sendingApp = original.ReceivingApp
		}
		if original.ReceivingFac != "" {
			sendingFac = original.ReceivingFac
		}
		receivingApp = original.SendingApp
		receivingFac = original.SendingFac
		originalControlID = original.ControlID
	}

	msh := fmt.Sprintf("MSH|^~\\&|%s|%s|%s|%s|%s||ACK|%s|P|2.5.1",
		Escape(sendingApp), Escape(sendingFac), Escape(receivingApp), Escape(receivingFac),
		now, controlID)
	msa := fmt.Sprintf("MSA|%s|%s|%s", code, originalControlID, Escape(text))

	return []byte(strings.Join([]string{msh, msa}, "\r"))
}
