// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package train

import (
	"math"
	"strconv"

	"github.com/emer/etable/agg"
	"github.com/emer/etable/etable"
	"github.com/emer/etable/etensor"
)

// LogPrec is precision for saving float values in logs
const LogPrec = 6

//////////////////////////////////////////////
//  TstLog

// LogTst adds the stats of evaluation iteration n to the TstLog table.
// secs is the time since the previous evaluation.
func (ss *Session) LogTst(dt *etable.Table, n int, secs float64) {
	row := dt.Rows
	dt.SetNumRows(row + 1)

	dt.SetCellFloat("Iter", row, float64(n))
	dt.SetCellFloat("Loss", row, ss.Loss)
	dt.SetCellFloat("MeanAbs", row, ss.Eval.MeanAbs)
	dt.SetCellFloat("MedianAbs", row, ss.Eval.MedianAbs)
	dt.SetCellFloat("MaxAbs", row, ss.Eval.MaxAbs)
	dt.SetCellFloat("Corr", row, ss.Eval.Corr)
	dt.SetCellFloat("SignCorr", row, ss.Eval.SignCorr)
	dt.SetCellFloat("Eta", row, float64(ss.Net.Eta.Val.Values[0]))
	dt.SetCellFloat("Lrate", row, float64(ss.Opt.Lrate))
	dt.SetCellFloat("Secs", row, secs)

	if ss.TstFile != nil {
		if !ss.TstHdrs {
			dt.WriteCSVHeaders(ss.TstFile, etable.Tab)
			ss.TstHdrs = true
		}
		dt.WriteCSVRow(ss.TstFile, row, etable.Tab)
	}
}

func (ss *Session) ConfigTstLog(dt *etable.Table) {
	dt.SetMetaData("name", "TstLog")
	dt.SetMetaData("desc", "Record of each evaluation iteration on held-out classes")
	dt.SetMetaData("read-only", "true")
	dt.SetMetaData("precision", strconv.Itoa(LogPrec))

	sch := etable.Schema{
		{"Iter", etensor.INT64, nil, nil},
		{"Loss", etensor.FLOAT64, nil, nil},
		{"MeanAbs", etensor.FLOAT64, nil, nil},
		{"MedianAbs", etensor.FLOAT64, nil, nil},
		{"MaxAbs", etensor.FLOAT64, nil, nil},
		{"Corr", etensor.FLOAT64, nil, nil},
		{"SignCorr", etensor.FLOAT64, nil, nil},
		{"Eta", etensor.FLOAT64, nil, nil},
		{"Lrate", etensor.FLOAT64, nil, nil},
		{"Secs", etensor.FLOAT64, nil, nil},
	}
	dt.SetFromSchema(sch, 0)
}

// TstLossMean returns the mean evaluation loss over the TstLog, NaN if empty
func (ss *Session) TstLossMean() float64 {
	if ss.TstLog.Rows == 0 {
		return math.NaN()
	}
	return agg.Mean(etable.NewIdxView(ss.TstLog), "Loss")[0]
}

//////////////////////////////////////////////
//  SaveLog

// LogSave adds the loss averages of the checkpoint after iteration n to the SaveLog table
func (ss *Session) LogSave(dt *etable.Table, n int, avg, avg100, prev float64) {
	row := dt.Rows
	dt.SetNumRows(row + 1)

	dt.SetCellFloat("Iter", row, float64(n))
	dt.SetCellFloat("AvgLoss", row, avg)
	dt.SetCellFloat("AvgLoss100", row, avg100)
	dt.SetCellFloat("PrevAvgLoss", row, prev)
	dt.SetCellFloat("TstLoss", row, ss.TstLossMean())

	if ss.SaveFile != nil {
		if !ss.SaveHdrs {
			dt.WriteCSVHeaders(ss.SaveFile, etable.Tab)
			ss.SaveHdrs = true
		}
		dt.WriteCSVRow(ss.SaveFile, row, etable.Tab)
	}
}

func (ss *Session) ConfigSaveLog(dt *etable.Table) {
	dt.SetMetaData("name", "SaveLog")
	dt.SetMetaData("desc", "Record of loss averages at each checkpoint")
	dt.SetMetaData("read-only", "true")
	dt.SetMetaData("precision", strconv.Itoa(LogPrec))

	sch := etable.Schema{
		{"Iter", etensor.INT64, nil, nil},
		{"AvgLoss", etensor.FLOAT64, nil, nil},
		{"AvgLoss100", etensor.FLOAT64, nil, nil},
		{"PrevAvgLoss", etensor.FLOAT64, nil, nil},
		{"TstLoss", etensor.FLOAT64, nil, nil},
	}
	dt.SetFromSchema(sch, 0)
}
