package main

import (
	"reflect"
	"strings"
	"testing"

	"flat-todo/internal/model"
)

func TestReadRows(t *testing.T) {
	in := "3\tShip release\t2024/01/01\t2024/01/10\t\r\n\n   \n1\tLunch\n"
	rows, err := readRows(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := []model.Task{
		{Priority: 3, Description: "Ship release", StartDate: "2024/01/01", DueDate: "2024/01/10"},
		{Priority: 1, Description: "Lunch"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("readRows = %+v, want %+v", rows, want)
	}
}

func TestReadRowsEmpty(t *testing.T) {
	rows, err := readRows(strings.NewReader(""))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 0 {
		t.Errorf("rows = %+v", rows)
	}
}
