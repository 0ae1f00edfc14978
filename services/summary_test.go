package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"defect-dashboard/models"
)

var runDay = time.Date(2025, 3, 14, 0, 0, 0, 0, time.Local)

func testRegistry() *WorstRegistry {
	return NewWorstRegistry(41, []models.WorstPart{
		{PartNumber: "W1", Name: "ﾎﾝﾀｲ", Customer: "A社", MajorDefects: "内径寸法"},
	})
}

func inspection(lot, part, machine string, day time.Time, qty int) models.InspectionRecord {
	return models.InspectionRecord{LotID: lot, PartNumber: part, MachineID: machine, InstructionDate: day, Quantity: qty}
}

func defect(lot, part string, total int, kinds map[string]int) models.DefectRecord {
	return models.DefectRecord{LotID: lot, PartNumber: part, TotalDefects: total, Kinds: kinds}
}

func TestSummarizeSingleLot(t *testing.T) {
	svc := NewSummaryService(newTestLogger(), testRegistry())
	ds := &models.Dataset{
		HasInspectionDate: true,
		DefectKinds:       []string{"scratch", "dent"},
		Inspections:       []models.InspectionRecord{inspection("L1", "P1", "M1", runDay, 100)},
		Defects:           []models.DefectRecord{defect("L1", "P1", 5, map[string]int{"scratch": 5, "dent": 0})},
	}

	s, err := svc.Summarize(ds, runDay)
	require.NoError(t, err)

	require.Len(t, s.Breakdown, 1)
	lot := s.Breakdown[0]
	assert.Equal(t, 100, lot.Quantity)
	assert.Equal(t, 5, lot.DefectTotal)
	assert.InDelta(t, 0.05, lot.DefectRate, 1e-9)
	assert.Equal(t, "scratch5", lot.Breakdown)
	assert.Equal(t, []string{"L1"}, lot.SourceLotIDs)

	require.Len(t, s.Normal, 1)
	assert.Equal(t, "P1", s.Normal[0].PartNumber)
	assert.Empty(t, s.Worst)
	assert.Equal(t, 1, s.LotCount)
	assert.Equal(t, 1, s.DefectRows)
}

func TestSummarizeFiltersRunDateAndDeduplicatesLots(t *testing.T) {
	svc := NewSummaryService(newTestLogger(), testRegistry())
	ds := &models.Dataset{
		HasInspectionDate: true,
		DefectKinds:       []string{"scratch"},
		Inspections: []models.InspectionRecord{
			inspection("L1", "P1", "M1", runDay, 100),
			inspection("L1", "P1", "M1", runDay, 999),
			inspection("L2", "P1", "M1", runDay.AddDate(0, 0, -1), 50),
			inspection("", "P1", "M1", runDay, 10),
		},
		Defects: []models.DefectRecord{
			defect("L1", "P1", 2, map[string]int{"scratch": 2}),
			defect("L2", "P1", 9, map[string]int{"scratch": 9}),
		},
	}

	s, err := svc.Summarize(ds, runDay)
	require.NoError(t, err)
	assert.Equal(t, 1, s.LotCount)
	assert.Equal(t, 1, s.DefectRows)
	require.Len(t, s.Parts, 1)
	assert.Equal(t, 100, s.Parts[0].QuantityTotal, "duplicate lot rows are not summed")
	assert.Equal(t, 2, s.Parts[0].DefectTotal)
	assert.False(t, s.DateMissing)
}

func TestSummarizeZeroQuantity(t *testing.T) {
	svc := NewSummaryService(newTestLogger(), testRegistry())
	ds := &models.Dataset{
		HasInspectionDate: true,
		DefectKinds:       []string{"scratch"},
		Inspections:       []models.InspectionRecord{inspection("L1", "P1", "M1", runDay, 0)},
		Defects:           []models.DefectRecord{defect("L1", "P1", 3, map[string]int{"scratch": 3})},
	}

	s, err := svc.Summarize(ds, runDay)
	require.NoError(t, err)
	require.Len(t, s.Parts, 1)
	assert.Zero(t, s.Parts[0].DefectRate)
	assert.Empty(t, s.Normal)
}

func TestSummarizePartition(t *testing.T) {
	svc := NewSummaryService(newTestLogger(), testRegistry())
	ds := &models.Dataset{
		HasInspectionDate: true,
		DefectKinds:       []string{"scratch"},
		Inspections: []models.InspectionRecord{
			inspection("L1", "W1", "M1", runDay, 100),
			inspection("L2", "P1", "M1", runDay, 100),
			inspection("L3", "P2", "M1", runDay, 100),
			inspection("L4", "P3", "M2", runDay, 100),
		},
		Defects: []models.DefectRecord{
			defect("L2", "P1", 1, map[string]int{"scratch": 1}),
			defect("L3", "P2", 2, map[string]int{"scratch": 2}),
			defect("L4", "P3", 7, map[string]int{"scratch": 7}),
		},
	}

	s, err := svc.Summarize(ds, runDay)
	require.NoError(t, err)

	require.Len(t, s.Worst, 1)
	assert.Equal(t, "W1", s.Worst[0].PartNumber)
	assert.Equal(t, "ﾎﾝﾀｲ", s.Worst[0].PartName, "registry fills missing product data")
	assert.True(t, s.Worst[0].Worst)
	assert.Zero(t, s.Worst[0].DefectRate)

	// exactly 1% is not reported
	require.Len(t, s.Normal, 2)
	assert.Equal(t, "P3", s.Normal[0].PartNumber)
	assert.Equal(t, "P2", s.Normal[1].PartNumber)

	for _, p := range s.Normal {
		assert.False(t, testRegistry().Contains(p.PartNumber))
		assert.Greater(t, p.DefectRate, NormalRateThreshold)
	}

	var order []string
	for _, p := range s.Parts {
		order = append(order, p.PartNumber)
	}
	assert.Equal(t, []string{"P1", "P2", "P3", "W1"}, order)
}

func TestSummarizeGroupsByMachine(t *testing.T) {
	svc := NewSummaryService(newTestLogger(), nil)
	ds := &models.Dataset{
		HasInspectionDate: true,
		DefectKinds:       []string{"scratch", "burr"},
		Inspections: []models.InspectionRecord{
			inspection("L1", "P1", "M1", runDay, 100),
			inspection("L2", "P1", "M1", runDay, 80),
			inspection("L3", "P1", "M2", runDay, 50),
		},
		Defects: []models.DefectRecord{
			defect("L1", "P1", 4, map[string]int{"scratch": 1, "burr": 3}),
			defect("L2", "P1", 6, map[string]int{"scratch": 2}),
			defect("L3", "P1", 5, map[string]int{"burr": 5}),
		},
	}

	s, err := svc.Summarize(ds, runDay)
	require.NoError(t, err)
	require.Len(t, s.Breakdown, 2)

	// M2 has the higher rate and sorts first
	assert.Equal(t, "M2", s.Breakdown[0].MachineID)
	assert.Equal(t, "burr5", s.Breakdown[0].Breakdown)

	m1 := s.Breakdown[1]
	assert.Equal(t, 100, m1.Quantity, "first quantity of the group wins")
	assert.Equal(t, 4, m1.DefectTotal, "first total of the group wins")
	assert.Equal(t, "scratch3、burr3", m1.Breakdown)
	assert.Equal(t, []string{"L1", "L2"}, m1.SourceLotIDs)

	require.Len(t, s.Parts, 1)
	assert.Equal(t, 150, s.Parts[0].QuantityTotal)
	assert.Equal(t, 9, s.Parts[0].DefectTotal)
	assert.Equal(t, "burr5 / scratch3、burr3", s.Parts[0].Breakdown)
}

func TestSummarizeMissingDateUsesAllRows(t *testing.T) {
	svc := NewSummaryService(newTestLogger(), nil)
	ds := &models.Dataset{
		DefectKinds: []string{"scratch"},
		Inspections: []models.InspectionRecord{
			inspection("L1", "P1", "M1", time.Time{}, 100),
			inspection("L2", "P1", "M1", time.Time{}, 100),
		},
		Defects: []models.DefectRecord{defect("L2", "P1", 3, map[string]int{"scratch": 3})},
	}

	s, err := svc.Summarize(ds, runDay)
	require.NoError(t, err)
	assert.True(t, s.DateMissing)
	assert.Equal(t, 2, s.LotCount)
	require.Len(t, s.Parts, 1)
	assert.Equal(t, 3, s.Parts[0].DefectTotal)
}

func TestSummarizeNilDataset(t *testing.T) {
	_, err := NewSummaryService(newTestLogger(), nil).Summarize(nil, runDay)
	assert.Error(t, err)
}

func TestFormatBreakdown(t *testing.T) {
	kinds := []string{"キズ", "バリ", "打痕"}
	assert.Equal(t, "キズ2、打痕1", formatBreakdown(map[string]int{"キズ": 2, "バリ": 0, "打痕": 1}, kinds))
	assert.Equal(t, "-", formatBreakdown(map[string]int{"キズ": 0}, kinds))
	assert.Equal(t, "-", formatBreakdown(nil, kinds))
}
