// mkfixture writes three small, deliberately messy clinic export CSVs for
// exercising the loader end to end: duplicate rows, mixed date formats,
// inconsistent headers, NA markers, and conflicting sex/risk values.
// Usage: go run ./cmd/mkfixture --dir testdata --patients 25
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

var (
	sexValues  = []string{"F", "f", "Fem", "Femenino", "M", "masc", "Masculino", "NA", ""}
	riskValues = []string{"BAJO", "bajo", "Moderado", "medio", "ALTO", "alta", "2", "0", "", "NA"}
	narratives = []string{"control", "primera consulta", "seguimiento", "", "NA"}
	medNames   = []string{"Sertralina", "Fluoxetina", "Escitalopram", "Clonazepam", "Venlafaxina"}
	doses      = []string{"50mg", "20mg", "10mg", "0.5mg", ""}
	regimens   = []string{"1-0-0", "0-0-1", "1-0-1", ""}
)

func main() {
	dir := flag.String("dir", "testdata", "output directory")
	patients := flag.Int("patients", 25, "number of distinct patients")
	seed := flag.Int64("seed", 7, "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	if err := os.MkdirAll(*dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
		os.Exit(1)
	}

	base := time.Date(2021, 1, 4, 0, 0, 0, 0, time.UTC)
	ids := make([]string, *patients)
	for i := range ids {
		ids[i] = fmt.Sprintf("%d", 1000+i)
	}

	depRows := [][]string{{"Id_Paciente", "FECHA CONSULTA", "Relato consulta", "Riesgo", "Sexo"}}
	medRows := [][]string{{"id_paciente", "fecha_consulta", "MED", "Dosis", "esquema", "riesgo"}}
	anxRows := [][]string{{"ID_PACIENTE", "Fecha_Consulta", "relato_consulta", "riesgo", "SEXO"}}

	for i, id := range ids {
		visits := 1 + rng.Intn(4)
		for v := 0; v < visits; v++ {
			day := base.AddDate(0, 0, rng.Intn(120))
			depRows = append(depRows, []string{
				id, formatDate(rng, day), pick(rng, narratives), pick(rng, riskValues), pick(rng, sexValues),
			})
			// Roughly one duplicate visit row in three, same patient and day.
			if rng.Intn(3) == 0 {
				depRows = append(depRows, []string{
					id, formatDate(rng, day), pick(rng, narratives), pick(rng, riskValues), pick(rng, sexValues),
				})
			}
			if rng.Intn(2) == 0 {
				medRows = append(medRows, []string{
					id, formatDate(rng, day), pick(rng, medNames), pick(rng, doses), pick(rng, regimens), pick(rng, riskValues),
				})
			}
			// Meds on days with no visit row force minimal visit creation.
			if rng.Intn(4) == 0 {
				medRows = append(medRows, []string{
					id, formatDate(rng, day.AddDate(0, 0, 1+rng.Intn(10))),
					pick(rng, medNames), pick(rng, doses), pick(rng, regimens), pick(rng, riskValues),
				})
			}
		}
		// A third of the cohort also appears in the anxiety export.
		if i%3 == 0 {
			day := base.AddDate(0, 0, rng.Intn(120))
			anxRows = append(anxRows, []string{
				id, formatDate(rng, day), pick(rng, narratives), pick(rng, riskValues), pick(rng, sexValues),
			})
		}
	}
	// Rows referencing nobody, to land in the skip log.
	depRows = append(depRows, []string{"", "2021-02-01", "sin id", "alto", "F"})
	medRows = append(medRows, []string{"9999999", "2021-02-01", "Sertralina", "50mg", "1-0-0", "alto"})

	for name, rows := range map[string][][]string{
		"dep_consultas.csv": depRows,
		"dep_meds.csv":      medRows,
		"ans_consultas.csv": anxRows,
	} {
		if err := writeCSV(filepath.Join(*dir, name), rows); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", name, err)
			os.Exit(1)
		}
		fmt.Printf("%s: %d rows\n", name, len(rows)-1)
	}
}

func pick(rng *rand.Rand, options []string) string {
	return options[rng.Intn(len(options))]
}

// formatDate emits one of the date shapes seen in real exports.
func formatDate(rng *rand.Rand, t time.Time) string {
	switch rng.Intn(3) {
	case 0:
		return t.Format("2006-01-02")
	case 1:
		return t.Format("02/01/2006")
	default:
		return t.Format("2006-01-02 15:04:05")
	}
}

func writeCSV(path string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}
