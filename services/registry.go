package services

import "defect-dashboard/models"

// WorstRegistry is the curated list of chronic worst performers for one
// fiscal term. Registered parts are always reported and get a dedicated
// comment prompt.
type WorstRegistry struct {
	term  int
	order []string
	parts map[string]models.WorstPart
}

// NewWorstRegistry builds a registry for the given term. Order is kept.
func NewWorstRegistry(term int, parts []models.WorstPart) *WorstRegistry {
	r := &WorstRegistry{term: term, parts: make(map[string]models.WorstPart, len(parts))}
	for _, p := range parts {
		if _, dup := r.parts[p.PartNumber]; dup {
			continue
		}
		r.order = append(r.order, p.PartNumber)
		r.parts[p.PartNumber] = p
	}
	return r
}

// DefaultWorstRegistry returns the worst parts of term 41.
func DefaultWorstRegistry() *WorstRegistry {
	return NewWorstRegistry(41, []models.WorstPart{
		{PartNumber: "08121-26312A", Name: "ﾎﾝﾀｲ", Customer: "不二プレシジョン", MajorDefects: "溝・内径寸法、外径・端面傷"},
		{PartNumber: "08121-26322A", Name: "ﾎﾝﾀｲ", Customer: "不二プレシジョン", MajorDefects: "溝・内径寸法、外径・端面傷"},
		{PartNumber: "A41G1CA302", Name: "ｸﾛｽﾊﾞｰ", Customer: "住友重機械工業", MajorDefects: "内径寸法、圧痕"},
		{PartNumber: "20002100001-N", Name: "ﾍﾞｱﾘﾝｸﾞ受けC", Customer: "ナカニシ", MajorDefects: "全長不良、傷、打痕、挽目"},
		{PartNumber: "06131-01710R", Name: "ﾌﾟﾗﾝｼﾞｬ", Customer: "不二テクノス", MajorDefects: "内径不良、傷、バリ、ムシレ"},
		{PartNumber: "06113-01310S", Name: "ﾎﾙﾀﾞ", Customer: "不二テクノス", MajorDefects: "全長・内径寸法、傷、ムシレ"},
		{PartNumber: "FC00-1401-4", Name: "流量調整ﾕﾆｯﾄ本体", Customer: "ハシダ技研工業", MajorDefects: "傷、打痕、偏心部ムシレ"},
		{PartNumber: "MA1005-0518003", Name: "ﾍﾞｱﾘﾝｸﾞ受けJ", Customer: "ナカニシ", MajorDefects: "内・外径寸法、傷、打痕"},
		{PartNumber: "06081-03911K", Name: "ｷｭｳｲﾝｼ", Customer: "不二テクノス", MajorDefects: "内・外径寸法、傷、バリ、ﾑｼﾚ"},
		{PartNumber: "H115A201G001-N", Name: "ﾉｰｽﾞ", Customer: "ナカニシ", MajorDefects: "内径寸法"},
		{PartNumber: "4C-2205B", Name: "ｴﾝﾄﾞ", Customer: "UEK", MajorDefects: "内径・ﾈｼﾞ、打痕、挽目、ﾑｼﾚ"},
	})
}

// Term is the fiscal term the registry was compiled for.
func (r *WorstRegistry) Term() int { return r.term }

// Contains reports whether partNumber is registered.
func (r *WorstRegistry) Contains(partNumber string) bool {
	_, ok := r.parts[partNumber]
	return ok
}

// Lookup returns the metadata of a registered part.
func (r *WorstRegistry) Lookup(partNumber string) (models.WorstPart, bool) {
	p, ok := r.parts[partNumber]
	return p, ok
}

// PartNumbers returns the registered part numbers in registration order.
func (r *WorstRegistry) PartNumbers() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
