// Package simulation drives a signed lab order through a realistic external
// lifecycle: transmission, acknowledgement, collection, lab intake,
// processing, and completion with synthesized panel results. It exists for
// development and demo environments where no real lab interface is wired.
package simulation

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// Lab identifiers used by the routing table.
const (
	LabQuest    = "quest"
	LabLabCorp  = "labcorp"
	LabHospital = "hospital"
	LabInternal = "internal"
)

// labPrefixes key external order id generation.
var labPrefixes = map[string]string{
	LabQuest:    "QST",
	LabLabCorp:  "LC",
	LabHospital: "HOSP",
	LabInternal: "INT",
}

// route describes where a test is sent and how long the lab takes to run
// it, in simulated minutes.
type route struct {
	lab            string
	processingMins int
}

// routingTable maps test codes to performing labs. Tests not listed run at
// the internal lab with a default turnaround.
var routingTable = map[string]route{
	"CBC":   {lab: LabInternal, processingMins: 45},
	"CMP":   {lab: LabQuest, processingMins: 90},
	"BMP":   {lab: LabQuest, processingMins: 75},
	"LIPID": {lab: LabLabCorp, processingMins: 120},
	"TSH":   {lab: LabQuest, processingMins: 240},
	"A1C":   {lab: LabLabCorp, processingMins: 180},
	"UA":    {lab: LabInternal, processingMins: 30},
	"PT":    {lab: LabHospital, processingMins: 60},
	"BCX":   {lab: LabHospital, processingMins: 2880}, // blood culture, 48h
	"UCX":   {lab: LabHospital, processingMins: 1440},
}

const defaultProcessingMins = 60

// resolveRoute returns the performing lab and processing time for a test.
func resolveRoute(testCode string) route {
	if r, ok := routingTable[strings.ToUpper(testCode)]; ok {
		return r
	}
	return route{lab: LabInternal, processingMins: defaultProcessingMins}
}

// externalOrderID builds a lab-scoped order identifier such as
// QST-1737000000-4821.
func externalOrderID(lab string, now time.Time, rng *rand.Rand) string {
	prefix, ok := labPrefixes[lab]
	if !ok {
		prefix = labPrefixes[LabInternal]
	}
	return fmt.Sprintf("%s-%s-%04d", prefix, strconv.FormatInt(now.Unix(), 10), rng.Intn(10000))
}

// intakeStep returns the lab-specific intake step message, or "" when the
// lab has no distinct intake stage.
func intakeStep(lab string) string {
	switch lab {
	case LabQuest:
		return "Specimen received at Quest intake"
	case LabLabCorp:
		return "Accessioning at LabCorp"
	case LabHospital:
		return "STAT intake triage"
	default:
		return ""
	}
}
