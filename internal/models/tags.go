package models

import "strings"

// canonicalTags maps milestone labels to the tags used in exported files.
var canonicalTags = map[string]string{
	LabelCharge:       "CHARGE",
	LabelDryEnd:       "DRYe",
	LabelFCStart:      "FCs",
	LabelFCEnd:        "FCe",
	LabelSCStart:      "SCs",
	LabelSCEnd:        "SCe",
	LabelDrop:         "DROP",
	LabelTurningPoint: "TP",
}

// externalLabels maps normalized external vocabulary to canonical labels.
var externalLabels = map[string]string{
	"charge": LabelCharge, "入豆": LabelCharge,
	"tp": LabelTurningPoint, "turningpoint": LabelTurningPoint, "回温点": LabelTurningPoint,
	"drye": LabelDryEnd, "dry": LabelDryEnd, "dryend": LabelDryEnd, "转黄": LabelDryEnd, "脱水结束": LabelDryEnd,
	"fcs": LabelFCStart, "fcstart": LabelFCStart, "firstcrack": LabelFCStart, "firstcrackstart": LabelFCStart, "一爆": LabelFCStart, "一爆开始": LabelFCStart,
	"fce": LabelFCEnd, "fcend": LabelFCEnd, "firstcrackend": LabelFCEnd, "一爆结束": LabelFCEnd,
	"scs": LabelSCStart, "scstart": LabelSCStart, "secondcrack": LabelSCStart, "secondcrackstart": LabelSCStart, "二爆": LabelSCStart, "二爆开始": LabelSCStart,
	"sce": LabelSCEnd, "scend": LabelSCEnd, "secondcrackend": LabelSCEnd, "二爆结束": LabelSCEnd,
	"drop": LabelDrop, "出豆": LabelDrop,
	"start": LabelStart,
}

// TagFor returns the export tag of label and whether it has one.
func TagFor(label string) (string, bool) {
	tag, ok := canonicalTags[label]
	return tag, ok
}

// LabelFor maps a tag or external milestone name to a canonical label.
// Unknown names are returned trimmed, so the vocabulary stays open.
func LabelFor(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	if label, ok := externalLabels[key]; ok {
		return label
	}
	return strings.TrimSpace(name)
}
