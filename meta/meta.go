// Package meta builds the version-polymorphic Metadata and Measurement
// structures (C7) from a keyword.State, applying each FCS version's payload
// differences and cross-field rules.
package meta

import (
	"fmt"
	"strconv"

	"github.com/nsbuitrago/gofcs/config"
	"github.com/nsbuitrago/gofcs/diag"
	"github.com/nsbuitrago/gofcs/header"
	"github.com/nsbuitrago/gofcs/keyword"
	"github.com/nsbuitrago/gofcs/rawtext"
	"github.com/nsbuitrago/gofcs/segment"
	"github.com/nsbuitrago/gofcs/value"
)

// Compensation2_0 holds the per-measurement-pair $DFCmTOn keys used to
// reconstruct a spillover-like matrix on 2.0 files, where no single $COMP
// or $SPILLOVER keyword exists.
type Compensation2_0 struct {
	Factors map[[2]int]float64 // (m, n) -> factor, 1-based measurement indices
}

// Payload2_0, Payload3_0, Payload3_1 and Payload3_2 are the version-specific
// subsets of Metadata fields. Exactly one of these is populated, selected by
// Metadata.Version.
type Payload2_0 struct {
	Compensation diag.Option[Compensation2_0]
}

type Payload3_0 struct {
	Comp diag.Option[value.Compensation]
}

type Payload3_1 struct {
	Spillover diag.Option[value.Spillover]
	Unicode   diag.Option[value.Unicode]

	// RecodedKeywords holds the $UNICODE-listed keywords' values re-decoded
	// from their declared code page, keyed by keyword name. Populated only
	// for keywords whose page resolves to a known encoding.
	RecodedKeywords map[string]string
}

type Payload3_2 struct {
	Spillover         diag.Option[value.Spillover]
	UnstainedCenters  diag.Option[value.UnstainedCenters]
	UnstainedInfo     diag.Option[string]
	BeginDateTime     diag.Option[value.FCSDateTime]
	EndDateTime       diag.Option[value.FCSDateTime]
	PlateID           diag.Option[string]
	PlateName         diag.Option[string]
	WellID            diag.Option[string]
	CarrierID         diag.Option[string]
	CarrierType       diag.Option[string]
	Locus             diag.Option[string]
	Originality       diag.Option[value.Originality]
}

// Metadata is the fully-typed, version-tagged FCS metadata record for one
// file.
type Metadata struct {
	Version header.Version

	// DataSegment is the reconciled DATA segment bounds (HEADER vs TEXT
	// already resolved by rawtext.Read), stashed here so databuild.Build
	// can plan a read without re-deriving it.
	DataSegment segment.Segment

	Par          int
	Tot          diag.Option[int64]
	Mode         value.Mode
	ByteOrd      value.ByteOrd
	DataType     value.AlphaNumType
	NextData     int64
	Cyt          diag.Option[string]
	Cytsn        diag.Option[string]
	Src          diag.Option[string]
	Sys          diag.Option[string]
	Exp          diag.Option[string]
	Inst         diag.Option[string]
	Op           diag.Option[string]
	Proj         diag.Option[string]
	Smno         diag.Option[string]
	Date         diag.Option[value.FCSDate]
	LastModified diag.Option[value.ModifiedDateTime]
	LastModifier diag.Option[string]
	Trigger      diag.Option[value.Trigger]
	Timestep     diag.Option[float64]
	Abrt         diag.Option[int64]
	Com          diag.Option[string]
	Cells        diag.Option[string]
	Fil          diag.Option[string]

	Measurements []Measurement

	V20 *Payload2_0
	V30 *Payload3_0
	V31 *Payload3_1
	V32 *Payload3_2
}

// Measurement is one $Pn* parameter, common fields plus the version-gated
// optional ones.
type Measurement struct {
	Index      int
	Bytes      value.Bytes
	Range      value.Range
	Shortname  diag.Option[value.Shortname]
	Longname   diag.Option[string]
	Filter     diag.Option[string]
	Gain       diag.Option[float64]
	Power      diag.Option[float64]
	Voltage    diag.Option[float64]
	Percent    diag.Option[string]

	// 3.0+
	Scale diag.Option[value.Scale]

	// 3.1+
	Calibration31 diag.Option[value.Calibration3_1]
	Display       diag.Option[value.Display]
	NumType       diag.Option[value.NumType]

	// 3.2+
	Calibration32 diag.Option[value.Calibration3_2]
	MeasurementType diag.Option[value.MeasurementType]
	Feature         diag.Option[value.Feature]
	Tag             diag.Option[string]
	DetectorName    diag.Option[string]
	Analyte         diag.Option[string]
}

// DataKind classifies the overall DATA-segment layout implied by $DATATYPE
// and whether any measurement declares a variable ('*') $PnB width.
// databuild.Build refines this into a concrete databuild.Kind (notably
// detecting per-column heterogeneity, which this method cannot see without
// importing databuild).
func (m Metadata) DataKind() (isAscii, isDelimited bool) {
	isAscii = m.DataType == value.TypeAscii
	if !isAscii {
		return false, false
	}
	for _, meas := range m.Measurements {
		if meas.Bytes.IsVariable() {
			return true, true
		}
	}
	return true, false
}

// Build reads every metadata and measurement keyword from state for the
// given version, applying cfg's cross-key validation, and returns the
// assembled Metadata plus all deferred diagnostics. A missing or invalid
// $PAR, $MODE, $BYTEORD or $DATATYPE, or a missing or invalid $PnB or $PnR
// for any of the $PAR measurements, is a StructuralFatal Failure; anything
// else defers (an absent $NEXTDATA reads as 0).
func Build(s *keyword.State, ver header.Version, dataSeg segment.Segment, cfg config.Config) (diag.Result[Metadata], *diag.Failure) {
	var deferred diag.Buf

	parR, fail := keyword.LookupRequired(s, "$PAR", keyword.ParseInt)
	if fail != nil {
		return diag.Result[Metadata]{}, fail
	}
	deferred.Extend(parR.Deferred)
	par := int(parR.Data)

	listOnly := ver >= header.FCS3_2
	modeR, fail := keyword.LookupRequired(s, "$MODE", func(s string) (value.Mode, error) { return value.ParseMode(s, listOnly) })
	if fail != nil {
		return diag.Result[Metadata]{}, fail.WithDeferred(deferred)
	}
	deferred.Extend(modeR.Deferred)

	allowPerm := ver < header.FCS3_1
	byteOrdR, fail := keyword.LookupRequired(s, "$BYTEORD", func(str string) (value.ByteOrd, error) { return value.ParseByteOrd(str, allowPerm) })
	if fail != nil {
		return diag.Result[Metadata]{}, fail.WithDeferred(deferred)
	}
	deferred.Extend(byteOrdR.Deferred)

	dtypeR, fail := keyword.LookupRequired(s, "$DATATYPE", value.ParseAlphaNumType)
	if fail != nil {
		return diag.Result[Metadata]{}, fail.WithDeferred(deferred)
	}
	deferred.Extend(dtypeR.Deferred)

	nextDataM := keyword.LookupOptional(s, "$NEXTDATA", keyword.ParseInt)
	deferred.Extend(nextDataM.Deferred)

	totM := keyword.LookupOptional(s, "$TOT", keyword.ParseInt)
	deferred.Extend(totM.Deferred)

	m := Metadata{
		Version: ver, Par: par, Mode: modeR.Data, ByteOrd: byteOrdR.Data,
		DataType: dtypeR.Data, NextData: nextDataM.Data.OrElse(0), Tot: totM.Data,
		DataSegment: dataSeg,
	}

	m.Cyt = optStr(s, "$CYT", &deferred)
	m.Cytsn = optStr(s, "$CYTSN", &deferred)
	m.Src = optStr(s, "$SRC", &deferred)
	m.Sys = optStr(s, "$SYS", &deferred)
	m.Exp = optStr(s, "$EXP", &deferred)
	m.Inst = optStr(s, "$INST", &deferred)
	m.Op = optStr(s, "$OP", &deferred)
	m.Proj = optStr(s, "$PROJ", &deferred)
	m.Smno = optStr(s, "$SMNO", &deferred)
	m.LastModifier = optStr(s, "$LAST_MODIFIER", &deferred)
	m.Com = optStr(s, "$COM", &deferred)
	m.Cells = optStr(s, "$CELLS", &deferred)
	m.Fil = optStr(s, "$FIL", &deferred)

	dateM := keyword.LookupOptional(s, "$DATE", value.ParseFCSDate)
	deferred.Extend(dateM.Deferred)
	m.Date = dateM.Data

	lmM := keyword.LookupOptional(s, "$LAST_MODIFIED", value.ParseModifiedDateTime)
	deferred.Extend(lmM.Deferred)
	m.LastModified = lmM.Data

	trigM := keyword.LookupOptional(s, "$TRIGGER", value.ParseTrigger)
	deferred.Extend(trigM.Deferred)
	m.Trigger = trigM.Data

	tsM := keyword.LookupOptional(s, "$TIMESTEP", parseFloat)
	deferred.Extend(tsM.Deferred)
	m.Timestep = tsM.Data

	abrtM := keyword.LookupOptional(s, "$ABRT", keyword.ParseInt)
	deferred.Extend(abrtM.Deferred)
	m.Abrt = abrtM.Data

	if ver >= header.FCS3_2 && !m.Cyt.Present {
		deferred.Pushf(diag.Error, diag.KindRequiredMissing, "$CYT is required in FCS 3.2")
	}

	measurements, mDiag, mfail := buildMeasurements(s, par, ver, cfg)
	if mfail != nil {
		return diag.Result[Metadata]{}, mfail.WithDeferred(deferred)
	}
	deferred.Extend(mDiag)
	m.Measurements = measurements

	switch {
	case ver == header.FCS2_0:
		m.V20 = buildPayload2_0(s, par, &deferred)
	case ver == header.FCS3_0:
		m.V30 = buildPayload3_0(s, &deferred)
	case ver == header.FCS3_1:
		m.V31 = buildPayload3_1(s, &deferred)
	case ver == header.FCS3_2:
		m.V32 = buildPayload3_2(s, &deferred)
	}

	shortnames := make([]string, 0, len(measurements))
	for _, meas := range measurements {
		if sn, ok := meas.Shortname.Get(); ok {
			shortnames = append(shortnames, string(sn))
		}
	}
	var spill diag.Option[value.Spillover]
	var unstained diag.Option[value.UnstainedCenters]
	var timeScale diag.Option[value.Scale]
	var timeGain diag.Option[float64]
	if m.V31 != nil {
		spill = m.V31.Spillover
	}
	if m.V32 != nil {
		spill = m.V32.Spillover
		unstained = m.V32.UnstainedCenters
	}
	for _, meas := range measurements {
		if sn, ok := meas.Shortname.Get(); ok && string(sn) == cfg.Time.Shortname {
			timeScale = meas.Scale
			timeGain = meas.Gain
		}
	}
	deferred.Extend(keyword.CheckCrossKey(shortnames, m.Trigger, spill, unstained, timeScale, m.Timestep, timeGain, cfg))

	if ver < header.FCS3_2 && cfg.DisallowDeviant {
		for _, k := range s.Untouched() {
			deferred.PushKeyf(diag.Error, diag.KindDeviant, string(k), s.Raw.Standard[k], "unrecognized standard keyword %s for %s", k, ver)
		}
	} else {
		for _, k := range s.Untouched() {
			deferred.PushKeyf(diag.Warning, diag.KindDeviant, string(k), s.Raw.Standard[k], "unrecognized standard keyword %s for %s", k, ver)
		}
	}
	for _, k := range rawtext.SortedNonStdKeys(s.Raw.NonStd) {
		deferred.PushKeyf(diag.Warning, diag.KindNonstandard, string(k), s.Raw.NonStd[k], "nonstandard keyword %s", k)
	}

	return diag.Result[Metadata]{Data: m, Deferred: deferred}, nil
}

func optStr(s *keyword.State, key rawtext.StdKey, deferred *diag.Buf) diag.Option[string] {
	m := keyword.LookupOptional(s, key, keyword.RawString)
	deferred.Extend(m.Deferred)
	return m.Data
}

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

func buildMeasurements(s *keyword.State, par int, ver header.Version, cfg config.Config) ([]Measurement, diag.Buf, *diag.Failure) {
	var deferred diag.Buf
	out := make([]Measurement, par)
	for i := 1; i <= par; i++ {
		bytesR, fail := keyword.LookupRequired(s, keyword.MeasurementKey(i, "B"), value.ParseBytes)
		if fail != nil {
			return nil, deferred, fail
		}
		deferred.Extend(bytesR.Deferred)

		rangeR, fail := keyword.LookupRequired(s, keyword.MeasurementKey(i, "R"), value.ParseRange)
		if fail != nil {
			return nil, deferred, fail
		}
		deferred.Extend(rangeR.Deferred)

		meas := Measurement{Index: i, Bytes: bytesR.Data, Range: rangeR.Data}

		snM := keyword.LookupOptional(s, keyword.MeasurementKey(i, "N"), value.ParseShortname)
		deferred.Extend(snM.Deferred)
		meas.Shortname = snM.Data

		meas.Longname = optStr(s, keyword.MeasurementKey(i, "S"), &deferred)
		meas.Filter = optStr(s, keyword.MeasurementKey(i, "F"), &deferred)
		meas.Percent = optStr(s, keyword.MeasurementKey(i, "P"), &deferred)

		gainM := keyword.LookupOptional(s, keyword.MeasurementKey(i, "G"), parseFloat)
		deferred.Extend(gainM.Deferred)
		meas.Gain = gainM.Data

		powerM := keyword.LookupOptional(s, keyword.MeasurementKey(i, "O"), parseFloat)
		deferred.Extend(powerM.Deferred)
		meas.Power = powerM.Data

		voltM := keyword.LookupOptional(s, keyword.MeasurementKey(i, "V"), parseFloat)
		deferred.Extend(voltM.Deferred)
		meas.Voltage = voltM.Data

		if ver >= header.FCS3_0 {
			scaleM := keyword.LookupOptional(s, keyword.MeasurementKey(i, "E"), value.ParseScale)
			deferred.Extend(scaleM.Deferred)
			meas.Scale = scaleM.Data
		}

		if ver >= header.FCS3_1 {
			calM := keyword.LookupOptional(s, keyword.MeasurementKey(i, "CALIBRATION"), value.ParseCalibration3_1)
			deferred.Extend(calM.Deferred)
			meas.Calibration31 = calM.Data

			dispM := keyword.LookupOptional(s, keyword.MeasurementKey(i, "DISPLAY"), value.ParseDisplay)
			deferred.Extend(dispM.Deferred)
			meas.Display = dispM.Data

			ntM := keyword.LookupOptional(s, keyword.MeasurementKey(i, "DATATYPE"), value.ParseNumType)
			deferred.Extend(ntM.Deferred)
			meas.NumType = ntM.Data
		}

		if ver >= header.FCS3_2 {
			cal32M := keyword.LookupOptional(s, keyword.MeasurementKey(i, "CALIBRATION"), value.ParseCalibration3_2)
			deferred.Extend(cal32M.Deferred)
			meas.Calibration32 = cal32M.Data

			typeM := keyword.LookupOptional(s, keyword.MeasurementKey(i, "TYPE"), func(v string) (value.MeasurementType, error) {
				return value.ParseMeasurementType(v), nil
			})
			deferred.Extend(typeM.Deferred)
			meas.MeasurementType = typeM.Data

			featM := keyword.LookupOptional(s, keyword.MeasurementKey(i, "FEATURE"), value.ParseFeature)
			deferred.Extend(featM.Deferred)
			meas.Feature = featM.Data

			meas.Tag = optStr(s, keyword.MeasurementKey(i, "TAG"), &deferred)
			meas.DetectorName = optStr(s, keyword.MeasurementKey(i, "DET"), &deferred)
			meas.Analyte = optStr(s, keyword.MeasurementKey(i, "ANALYTE"), &deferred)
		}

		if !meas.Bytes.IsVariable() && cfg.EnforceDataWidthDivisibility {
			// Per-measurement width sanity is re-checked against the DATA
			// segment length in databuild; here only the keyword's own
			// internal consistency (non-zero width) is in scope.
			if meas.Bytes.Width() <= 0 {
				deferred.PushKeyf(diag.Error, diag.KindValue, string(keyword.MeasurementKey(i, "B")), "", "$P%dB must be positive", i)
			}
		}

		out[i-1] = meas
	}
	return out, deferred, nil
}

func buildPayload2_0(s *keyword.State, par int, deferred *diag.Buf) *Payload2_0 {
	factors := make(map[[2]int]float64)
	for m := 1; m <= par; m++ {
		for n := 1; n <= par; n++ {
			key := rawtext.StdKey(fmt.Sprintf("$DFC%dTO%d", m, n))
			res := keyword.LookupOptional(s, key, parseFloat)
			deferred.Extend(res.Deferred)
			if v, ok := res.Data.Get(); ok {
				factors[[2]int{m, n}] = v
			}
		}
	}
	p := &Payload2_0{}
	if len(factors) > 0 {
		p.Compensation = diag.Some(Compensation2_0{Factors: factors})
	}
	return p
}

func buildPayload3_0(s *keyword.State, deferred *diag.Buf) *Payload3_0 {
	compM := keyword.LookupOptional(s, "$COMP", value.ParseCompensation)
	deferred.Extend(compM.Deferred)
	return &Payload3_0{Comp: compM.Data}
}

func buildPayload3_1(s *keyword.State, deferred *diag.Buf) *Payload3_1 {
	spillM := keyword.LookupOptional(s, "$SPILLOVER", value.ParseSpillover)
	deferred.Extend(spillM.Deferred)
	uniM := keyword.LookupOptional(s, "$UNICODE", value.ParseUnicode)
	deferred.Extend(uniM.Deferred)

	recoded := map[string]string{}
	if u, ok := uniM.Data.Get(); ok {
		for _, kw := range u.Keywords {
			raw, present := s.Raw.Standard[rawtext.StdKey(kw)]
			if !present {
				raw, present = s.Raw.NonStd[rawtext.NonStdKey(kw)]
			}
			if !present {
				continue
			}
			decoded, err := u.DecodeKeywordValue([]byte(raw))
			if err != nil {
				deferred.Pushf(diag.Warning, diag.KindValue, "$UNICODE keyword %s: %v", kw, err)
				continue
			}
			recoded[kw] = decoded
		}
	}

	return &Payload3_1{Spillover: spillM.Data, Unicode: uniM.Data, RecodedKeywords: recoded}
}

func buildPayload3_2(s *keyword.State, deferred *diag.Buf) *Payload3_2 {
	spillM := keyword.LookupOptional(s, "$SPILLOVER", value.ParseSpillover)
	deferred.Extend(spillM.Deferred)
	ucM := keyword.LookupOptional(s, "$UNSTAINEDCENTERS", value.ParseUnstainedCenters)
	deferred.Extend(ucM.Deferred)
	bdtM := keyword.LookupOptional(s, "$BEGINDATETIME", value.ParseFCSDateTime)
	deferred.Extend(bdtM.Deferred)
	edtM := keyword.LookupOptional(s, "$ENDDATETIME", value.ParseFCSDateTime)
	deferred.Extend(edtM.Deferred)
	origM := keyword.LookupOptional(s, "$ORIGINALITY", value.ParseOriginality)
	deferred.Extend(origM.Deferred)

	p := &Payload3_2{
		Spillover: spillM.Data, UnstainedCenters: ucM.Data,
		BeginDateTime: bdtM.Data, EndDateTime: edtM.Data, Originality: origM.Data,
		UnstainedInfo: optStr(s, "$UNSTAINEDINFO", deferred),
		PlateID:       optStr(s, "$PLATEID", deferred),
		PlateName:     optStr(s, "$PLATENAME", deferred),
		WellID:        optStr(s, "$WELLID", deferred),
		CarrierID:     optStr(s, "$CARRIERID", deferred),
		CarrierType:   optStr(s, "$CARRIERTYPE", deferred),
		Locus:         optStr(s, "$LOCUS", deferred),
	}

	if b, okB := bdtM.Data.Get(); okB {
		if e, okE := edtM.Data.Get(); okE && e.T.Before(b.T) {
			deferred.Pushf(diag.Warning, diag.KindCrossKey, "$ENDDATETIME precedes $BEGINDATETIME")
		}
	}
	return p
}
