// Command colstore-demo is a small REPL walkthrough of the engine: it
// creates an "employees" table, inserts a handful of rows, and then drops
// into an interactive loop that answers count, sum, avg and find commands
// against it.
//
// Grounded on the teacher's main.go REPL shape (bufio.Scanner reading
// stdin, "db> " prompt, "exit" to quit) and on the walkthrough performed by
// original_source/DatabaseApp.cpp's runLargeScaleDemo against an
// "employees" table with id/name/salary/department_id columns.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"colstore"
	"colstore/internal/coltype"
)

func main() {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)

	dir := "./colstore-demo-data"
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	opts := colstore.DefaultOptions()
	opts.Logger = log
	db, err := colstore.Open(dir, opts)
	if err != nil {
		log.WithError(err).Fatal("open database")
	}
	defer db.Close()

	if err := seedEmployees(db); err != nil {
		log.WithError(err).Fatal("seed employees table")
	}

	fmt.Println("colstore demo ready. Try: count, sum salary, avg salary, find department_id 1, exit")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("db> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.EqualFold(line, "exit") {
			break
		}
		if err := runCommand(db, line); err != nil {
			fmt.Println("error:", err)
		}
	}
}

func seedEmployees(db *colstore.Database) error {
	t, err := db.CreateTable("employees")
	if err != nil {
		return err
	}
	for _, col := range []struct {
		name string
		typ  coltype.DataType
	}{
		{"id", coltype.Int32},
		{"name", coltype.String},
		{"salary", coltype.Float64},
		{"department_id", coltype.Int32},
	} {
		if _, err := t.AddColumn(col.name, col.typ); err != nil {
			return err
		}
	}

	rows := []map[string]coltype.Value{
		{"id": coltype.NewInt32(1), "name": coltype.NewString("John Smith"), "salary": coltype.NewFloat64(50000), "department_id": coltype.NewInt32(1)},
		{"id": coltype.NewInt32(2), "name": coltype.NewString("Jane Doe"), "salary": coltype.NewFloat64(60000), "department_id": coltype.NewInt32(2)},
		{"id": coltype.NewInt32(3), "name": coltype.NewString("Bob Wilson"), "salary": coltype.NewFloat64(55000), "department_id": coltype.NewInt32(1)},
	}
	for _, row := range rows {
		if err := t.InsertRow(row); err != nil {
			return err
		}
	}
	return db.FlushAll()
}

func runCommand(db *colstore.Database, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}

	t, err := db.GetTable("employees")
	if err != nil {
		return err
	}

	switch fields[0] {
	case "count":
		fmt.Println(t.RowCount())
	case "sum", "avg":
		if len(fields) < 2 {
			return fmt.Errorf("usage: %s <column>", fields[0])
		}
		col, err := t.GetColumn(fields[1])
		if err != nil {
			return err
		}
		if fields[0] == "sum" {
			v, err := col.Sum()
			if err != nil {
				return err
			}
			fmt.Println(v)
		} else {
			v, err := col.Avg()
			if err != nil {
				return err
			}
			fmt.Println(v)
		}
	case "find":
		if len(fields) < 3 {
			return fmt.Errorf("usage: find <column> <int-value>")
		}
		col, err := t.GetColumn(fields[1])
		if err != nil {
			return err
		}
		n, err := strconv.ParseInt(fields[2], 10, 32)
		if err != nil {
			return err
		}
		recs, err := col.Find(coltype.NewInt32(int32(n)))
		if err != nil {
			return err
		}
		fmt.Println(recs)
	default:
		return fmt.Errorf("unknown command %q", fields[0])
	}
	return nil
}
