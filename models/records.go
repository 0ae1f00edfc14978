package models

import "time"

// InspectionRecord is one inspected production lot from the appearance
// inspection table.
type InspectionRecord struct {
	LotID           string
	PartNumber      string
	MachineID       string
	InstructionDate time.Time // zero when the source has no date column
	Quantity        int
}

// DefectRecord is one defect tally row from the defect table. Kinds holds
// the open-schema defect counters keyed by column name.
type DefectRecord struct {
	LotID        string
	PartNumber   string
	MachineID    string
	RecordDate   time.Time // zero when absent
	Quantity     int
	HasQuantity  bool
	TotalDefects int
	Kinds        map[string]int
}

// Product is a row of the product master used to label part numbers.
type Product struct {
	PartNumber string
	Name       string
	Customer   string
}

// Dataset is the normalized input of one run.
type Dataset struct {
	Inspections []InspectionRecord
	Defects     []DefectRecord
	// DefectKinds lists the discovered defect-kind columns in source order.
	DefectKinds []string
	Products    map[string]Product

	HasInspectionDate bool
	HasDefectDate     bool
	HasMachine        bool
}
