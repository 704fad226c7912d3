package ingestion

import "strings"

// CatalogEntry describes a test the lab knows how to perform, keyed by
// internal code and LOINC.
type CatalogEntry struct {
	TestCode       string
	LOINCCode      string
	Name           string
	Units          string
	ReferenceRange string
	Category       string
	SpecimenType   string
}

// Catalog validates candidate results against the known test directory and
// backfills missing identifiers, units, and reference ranges.
type Catalog struct {
	byLOINC map[string]*CatalogEntry
	byCode  map[string]*CatalogEntry
	byName  map[string]*CatalogEntry
}

// defaultEntries is the built-in test directory. A deployment would load
// this from the catalog tables; the built-in set covers the common panels.
var defaultEntries = []CatalogEntry{
	{TestCode: "GLU", LOINCCode: "2345-7", Name: "Glucose", Units: "mg/dL", ReferenceRange: "70-99", Category: "chemistry", SpecimenType: "serum"},
	{TestCode: "BUN", LOINCCode: "3094-0", Name: "Blood Urea Nitrogen", Units: "mg/dL", ReferenceRange: "7-20", Category: "chemistry", SpecimenType: "serum"},
	{TestCode: "CREAT", LOINCCode: "2160-0", Name: "Creatinine", Units: "mg/dL", ReferenceRange: "0.6-1.2", Category: "chemistry", SpecimenType: "serum"},
	{TestCode: "NA", LOINCCode: "2951-2", Name: "Sodium", Units: "mmol/L", ReferenceRange: "136-145", Category: "chemistry", SpecimenType: "serum"},
	{TestCode: "K", LOINCCode: "2823-3", Name: "Potassium", Units: "mmol/L", ReferenceRange: "3.5-5.1", Category: "chemistry", SpecimenType: "serum"},
	{TestCode: "CL", LOINCCode: "2075-0", Name: "Chloride", Units: "mmol/L", ReferenceRange: "98-107", Category: "chemistry", SpecimenType: "serum"},
	{TestCode: "CO2", LOINCCode: "2028-9", Name: "Carbon Dioxide", Units: "mmol/L", ReferenceRange: "21-31", Category: "chemistry", SpecimenType: "serum"},
	{TestCode: "CA", LOINCCode: "17861-6", Name: "Calcium", Units: "mg/dL", ReferenceRange: "8.5-10.5", Category: "chemistry", SpecimenType: "serum"},
	{TestCode: "ALB", LOINCCode: "1751-7", Name: "Albumin", Units: "g/dL", ReferenceRange: "3.5-5.0", Category: "chemistry", SpecimenType: "serum"},
	{TestCode: "WBC", LOINCCode: "6690-2", Name: "White Blood Cell Count", Units: "10*3/uL", ReferenceRange: "4.5-11.0", Category: "hematology", SpecimenType: "whole blood"},
	{TestCode: "RBC", LOINCCode: "789-8", Name: "Red Blood Cell Count", Units: "10*6/uL", ReferenceRange: "4.2-5.9", Category: "hematology", SpecimenType: "whole blood"},
	{TestCode: "HGB", LOINCCode: "718-7", Name: "Hemoglobin", Units: "g/dL", ReferenceRange: "12.0-17.5", Category: "hematology", SpecimenType: "whole blood"},
	{TestCode: "HCT", LOINCCode: "4544-3", Name: "Hematocrit", Units: "%", ReferenceRange: "36-50", Category: "hematology", SpecimenType: "whole blood"},
	{TestCode: "PLT", LOINCCode: "777-3", Name: "Platelet Count", Units: "10*3/uL", ReferenceRange: "150-400", Category: "hematology", SpecimenType: "whole blood"},
	{TestCode: "TSH", LOINCCode: "3016-3", Name: "Thyroid Stimulating Hormone", Units: "mIU/L", ReferenceRange: "0.4-4.0", Category: "endocrinology", SpecimenType: "serum"},
	{TestCode: "CHOL", LOINCCode: "2093-3", Name: "Total Cholesterol", Units: "mg/dL", ReferenceRange: "<200", Category: "chemistry", SpecimenType: "serum"},
	{TestCode: "TRIG", LOINCCode: "2571-8", Name: "Triglycerides", Units: "mg/dL", ReferenceRange: "<150", Category: "chemistry", SpecimenType: "serum"},
	{TestCode: "HDL", LOINCCode: "2085-9", Name: "HDL Cholesterol", Units: "mg/dL", ReferenceRange: ">40", Category: "chemistry", SpecimenType: "serum"},
	{TestCode: "LDL", LOINCCode: "13457-7", Name: "LDL Cholesterol", Units: "mg/dL", ReferenceRange: "<130", Category: "chemistry", SpecimenType: "serum"},
	{TestCode: "A1C", LOINCCode: "4548-4", Name: "Hemoglobin A1c", Units: "%", ReferenceRange: "4.0-5.6", Category: "chemistry", SpecimenType: "whole blood"},
	{TestCode: "INR", LOINCCode: "6301-6", Name: "INR", Units: "", ReferenceRange: "0.8-1.2", Category: "coagulation", SpecimenType: "plasma"},
}

// NewCatalog builds a catalog from the built-in test directory.
func NewCatalog() *Catalog {
	return NewCatalogWith(defaultEntries)
}

// NewCatalogWith builds a catalog from the given entries.
func NewCatalogWith(entries []CatalogEntry) *Catalog {
	c := &Catalog{
		byLOINC: make(map[string]*CatalogEntry, len(entries)),
		byCode:  make(map[string]*CatalogEntry, len(entries)),
		byName:  make(map[string]*CatalogEntry, len(entries)),
	}
	for i := range entries {
		e := &entries[i]
		if e.LOINCCode != "" {
			c.byLOINC[e.LOINCCode] = e
		}
		if e.TestCode != "" {
			c.byCode[strings.ToUpper(e.TestCode)] = e
		}
		if e.Name != "" {
			c.byName[strings.ToLower(e.Name)] = e
		}
	}
	return c
}

// Lookup finds a catalog entry by LOINC code, internal test code, or name.
func (c *Catalog) Lookup(loinc, code, name string) *CatalogEntry {
	if loinc != "" {
		if e, ok := c.byLOINC[loinc]; ok {
			return e
		}
	}
	if code != "" {
		if e, ok := c.byCode[strings.ToUpper(code)]; ok {
			return e
		}
	}
	if name != "" {
		if e, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]; ok {
			return e
		}
	}
	return nil
}

// LookupLOINC finds an entry by LOINC code only.
func (c *Catalog) LookupLOINC(loinc string) *CatalogEntry {
	if e, ok := c.byLOINC[loinc]; ok {
		return e
	}
	return nil
}

// Validate checks the candidate against the catalog. Known tests get
// missing identifiers, units, and reference ranges backfilled. A unit
// mismatch or an unknown test does not reject the candidate; it marks it
// for review with a note so a human resolves the discrepancy.
func (c *Catalog) Validate(cand *CandidateResult) {
	entry := c.Lookup(cand.LOINCCode, cand.TestCode, cand.TestName)
	if entry == nil {
		cand.NeedsReview = true
		cand.AddNote("test not found in catalog: " + cand.TestName)
		return
	}

	if cand.LOINCCode == "" {
		cand.LOINCCode = entry.LOINCCode
	}
	if cand.TestCode == "" {
		cand.TestCode = entry.TestCode
	}
	if cand.TestName == "" {
		cand.TestName = entry.Name
	}
	if cand.Category == "" {
		cand.Category = entry.Category
	}
	if cand.Units == "" {
		cand.Units = entry.Units
	} else if entry.Units != "" && !strings.EqualFold(cand.Units, entry.Units) {
		cand.NeedsReview = true
		cand.AddNote("unit mismatch: got " + cand.Units + ", catalog expects " + entry.Units)
	}
	if cand.ReferenceRange == "" {
		cand.ReferenceRange = entry.ReferenceRange
	}
}
