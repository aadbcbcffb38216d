// Copyright (c) 2024, The Emergent Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package plast

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/emer/emergent/weights"
	"github.com/goki/gi/gi"
	"github.com/goki/ki/indent"
)

// Weights files use the standard emergent weights JSON layout: each
// parameter is written as a "Layer" with one "Prjn" whose receiving units
// are the rows of the parameter (first dimension) and whose sending indexes
// run over the remaining dimensions.  The shape is stored in MetaData.

// SaveWtsJSON saves network weights to a JSON-formatted file.
// If filename has .gz extension, then file is gzip compressed.
// WtsFile is only set if the whole file was written and closed.
func (nt *Network) SaveWtsJSON(filename gi.FileName) error {
	fp, err := os.Create(string(filename))
	if err != nil {
		log.Println(err)
		return err
	}
	ext := filepath.Ext(string(filename))
	if ext == ".gz" {
		gzr := gzip.NewWriter(fp)
		err = nt.WriteWtsJSON(gzr)
		if cerr := gzr.Close(); err == nil {
			err = cerr
		}
	} else {
		err = nt.WriteWtsJSON(fp)
	}
	if cerr := fp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		log.Println(err)
		return err
	}
	nt.WtsFile = string(filename)
	return nil
}

// OpenWtsJSON opens network weights from a JSON-formatted file.
// If filename has .gz extension, then file is gzip uncompressed.
func (nt *Network) OpenWtsJSON(filename gi.FileName) error {
	fp, err := os.Open(string(filename))
	if err != nil {
		log.Println(err)
		return err
	}
	defer fp.Close()
	ext := filepath.Ext(string(filename))
	if ext == ".gz" {
		gzr, err := gzip.NewReader(fp)
		if err != nil {
			log.Println(err)
			return err
		}
		defer gzr.Close()
		err = nt.ReadWtsJSON(gzr)
		if err == nil {
			nt.WtsFile = string(filename)
		}
		return err
	}
	err = nt.ReadWtsJSON(fp)
	if err == nil {
		nt.WtsFile = string(filename)
	}
	return err
}

// rowsCols returns the number of rows (first dim) and values per row
func rowsCols(pr *Param) (int, int) {
	shp := pr.Val.Shapes()
	nr := shp[0]
	if nr == 0 {
		return 0, 0
	}
	return nr, pr.Len() / nr
}

// shapeString formats a shape as 2,3,4
func shapeString(shp []int) string {
	ss := make([]string, len(shp))
	for i, s := range shp {
		ss[i] = strconv.Itoa(s)
	}
	return strings.Join(ss, ",")
}

// WriteWtsJSON writes all the trainable parameters in a JSON text format,
// returning the first write error.
// We build in the indentation logic to make it much faster and more efficient.
func (nt *Network) WriteWtsJSON(wr io.Writer) error {
	w := bufio.NewWriter(wr)
	depth := 0
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("{\n"))
	depth++
	w.Write(indent.TabBytes(depth))
	w.Write([]byte(fmt.Sprintf("\"Network\": %q,\n", nt.Nm)))
	if len(nt.MetaData) > 0 {
		w.Write(indent.TabBytes(depth))
		w.Write([]byte("\"MetaData\": {\n"))
		depth++
		keys := make([]string, 0, len(nt.MetaData))
		for k := range nt.MetaData {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for ki, k := range keys {
			w.Write(indent.TabBytes(depth))
			w.Write([]byte(fmt.Sprintf("%q: %q", k, nt.MetaData[k])))
			if ki == len(keys)-1 {
				w.Write([]byte("\n"))
			} else {
				w.Write([]byte(",\n"))
			}
		}
		depth--
		w.Write(indent.TabBytes(depth))
		w.Write([]byte("},\n"))
	}
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("\"Layers\": [\n"))
	depth++
	prs := nt.AllParams()
	for pi, pr := range prs {
		nt.writeParamJSON(w, pr, depth)
		if pi == len(prs)-1 {
			w.Write([]byte("\n"))
		} else {
			w.Write([]byte(",\n"))
		}
	}
	depth--
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("]\n"))
	depth--
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("}\n"))
	return w.Flush()
}

// writeParamJSON writes one parameter as a weights Layer, leaving it unterminated
func (nt *Network) writeParamJSON(w io.Writer, pr *Param, depth int) {
	nr, ncol := rowsCols(pr)
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("{\n"))
	depth++
	w.Write(indent.TabBytes(depth))
	w.Write([]byte(fmt.Sprintf("\"Layer\": %q,\n", pr.Name)))
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("\"MetaData\": {\n"))
	depth++
	w.Write(indent.TabBytes(depth))
	w.Write([]byte(fmt.Sprintf("\"Shape\": %q\n", shapeString(pr.Val.Shapes()))))
	depth--
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("},\n"))
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("\"Prjns\": [\n"))
	depth++
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("{\n"))
	depth++
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("\"From\": \"Param\",\n"))
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("\"Rs\": [\n"))
	depth++
	for ri := 0; ri < nr; ri++ {
		w.Write(indent.TabBytes(depth))
		w.Write([]byte("{\n"))
		depth++
		w.Write(indent.TabBytes(depth))
		w.Write([]byte(fmt.Sprintf("\"Ri\": %v,\n", ri)))
		w.Write(indent.TabBytes(depth))
		w.Write([]byte(fmt.Sprintf("\"N\": %v,\n", ncol)))
		w.Write(indent.TabBytes(depth))
		w.Write([]byte("\"Si\": [ "))
		for ci := 0; ci < ncol; ci++ {
			w.Write([]byte(strconv.Itoa(ci)))
			if ci == ncol-1 {
				w.Write([]byte(" "))
			} else {
				w.Write([]byte(", "))
			}
		}
		w.Write([]byte("],\n"))
		w.Write(indent.TabBytes(depth))
		w.Write([]byte("\"Wt\": [ "))
		row := pr.Val.Values[ri*ncol : (ri+1)*ncol]
		for ci, wt := range row {
			w.Write([]byte(strconv.FormatFloat(float64(wt), 'g', -1, 32)))
			if ci == ncol-1 {
				w.Write([]byte(" "))
			} else {
				w.Write([]byte(", "))
			}
		}
		w.Write([]byte("]\n"))
		depth--
		w.Write(indent.TabBytes(depth))
		if ri == nr-1 {
			w.Write([]byte("}\n"))
		} else {
			w.Write([]byte("},\n"))
		}
	}
	depth--
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("]\n"))
	depth--
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("}\n"))
	depth--
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("]\n"))
	depth--
	w.Write(indent.TabBytes(depth))
	w.Write([]byte("}"))
}

// ReadWtsJSON reads network weights in the JSON text format written by
// WriteWtsJSON, into a temporary weights.Network that is then applied by SetWts.
func (nt *Network) ReadWtsJSON(r io.Reader) error {
	nw, err := weights.NetReadJSON(r)
	if err != nil {
		return err // note: already logged
	}
	err = nt.SetWts(nw)
	if err != nil {
		log.Println(err)
	}
	return err
}

// SetWts sets the parameters from weights.Network decoded values.
// Every parameter in the file must exist in the network with the same shape.
func (nt *Network) SetWts(nw *weights.Network) error {
	var err error
	if nw.MetaData != nil {
		if nt.MetaData == nil {
			nt.MetaData = make(map[string]string)
		}
		for mk, mv := range nw.MetaData {
			nt.MetaData[mk] = mv
		}
	}
	for li := range nw.Layers {
		lw := &nw.Layers[li]
		pr := nt.ParamByName(lw.Layer)
		if pr == nil {
			err = fmt.Errorf("plast.SetWts: parameter %q not found in network %v", lw.Layer, nt.Nm)
			continue
		}
		if shp, ok := lw.MetaData["Shape"]; ok && shp != shapeString(pr.Val.Shapes()) {
			err = fmt.Errorf("plast.SetWts: parameter %q has shape %s in file, %s in network", lw.Layer, shp, shapeString(pr.Val.Shapes()))
			continue
		}
		if len(lw.Prjns) != 1 {
			err = fmt.Errorf("plast.SetWts: parameter %q has %d prjns, expected 1", lw.Layer, len(lw.Prjns))
			continue
		}
		_, ncol := rowsCols(pr)
		for ri := range lw.Prjns[0].Rs {
			rw := &lw.Prjns[0].Rs[ri]
			for si, wt := range rw.Wt {
				if si >= len(rw.Si) || rw.Si[si] >= ncol || rw.Ri*ncol+rw.Si[si] >= pr.Len() {
					err = fmt.Errorf("plast.SetWts: parameter %q index out of range: row %d col %d", lw.Layer, rw.Ri, si)
					break
				}
				pr.Val.Values[rw.Ri*ncol+rw.Si[si]] = wt
			}
		}
	}
	return err
}
