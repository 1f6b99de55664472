package source

import (
	"context"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTML 读取页面中的第一个 <table>：第一行（th 或 td）为表头，其余行为数据。
type HTML struct{}

func (HTML) Name() string { return "html" }

func (HTML) Load(ctx context.Context, r io.Reader) ([]map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, &DataError{Msg: "HTML 无法解析", Err: err}
	}

	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, &DataError{Msg: "HTML 中没有 <table>"}
	}

	// 只取属于本表的行，嵌套表格里的行不算。
	trs := table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.ParentsFiltered("table").First().IsSelection(table)
	})
	if trs.Length() == 0 {
		return nil, &DataError{Msg: "表格没有任何行"}
	}

	head, err := header(cellTexts(trs.First()))
	if err != nil {
		return nil, err
	}

	var rows []map[string]string
	var ctxErr error
	trs.Slice(1, trs.Length()).EachWithBreak(func(_ int, tr *goquery.Selection) bool {
		if ctxErr = ctx.Err(); ctxErr != nil {
			return false
		}
		cells := cellTexts(tr)
		if isBlank(cells) {
			return true
		}
		rows = append(rows, row(head, cells))
		return true
	})
	if ctxErr != nil {
		return nil, ctxErr
	}
	return rows, nil
}

func cellTexts(tr *goquery.Selection) []string {
	cells := tr.ChildrenFiltered("th, td")
	out := make([]string, 0, cells.Length())
	cells.Each(func(_ int, c *goquery.Selection) {
		out = append(out, strings.Join(strings.Fields(c.Text()), " "))
	})
	return out
}
