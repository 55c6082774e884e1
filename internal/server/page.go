package server

import (
	"encoding/json"
	"strconv"
	"time"

	g "maragu.dev/gomponents"
	. "maragu.dev/gomponents/html"

	"github.com/reelwatch/reelwatch/pkg/storage"
)

type dashboardData struct {
	Activities []storage.Activity
	Users      []storage.User
	Stats      storage.Stats
	Err        error
}

func dashboardPage(d dashboardData) g.Node {
	return g.Group([]g.Node{
		g.Raw("<!DOCTYPE html>"),
		HTML(
			Lang("en"),
			Head(
				Meta(Charset("UTF-8")),
				Meta(Name("viewport"), Content("width=device-width, initial-scale=1.0")),
				TitleEl(g.Text("reelwatch dashboard")),
				Script(Src("https://cdn.tailwindcss.com")),
			),
			Body(Class("bg-slate-950 font-sans antialiased text-slate-300"),
				Main(Class("max-w-5xl mx-auto px-4 py-8 space-y-8"),
					H1(Class("text-2xl md:text-3xl font-bold text-white"), g.Text("reelwatch")),
					g.If(d.Err != nil, errorBanner(d.Err)),
					Div(ID("stats"), Class("grid grid-cols-3 gap-4"),
						statsCard("Movies", d.Stats.Movies),
						statsCard("Activities", d.Stats.Activities),
						statsCard("Users", d.Stats.Users),
					),
					activitiesTable(d.Activities),
					usersTable(d.Users),
				),
			),
		),
	})
}

func errorBanner(err error) g.Node {
	return Div(Class("bg-red-900/40 border border-red-700 text-red-200 px-4 py-3 rounded"),
		Strong(g.Text("Error loading data: ")),
		g.Text(err.Error()),
	)
}

func statsCard(label string, value int) g.Node {
	return Div(Class("bg-slate-900 rounded-xl p-4 text-center"),
		Div(Class("text-2xl font-extrabold tabular-nums text-cyan-400"), g.Text(strconv.Itoa(value))),
		Div(Class("text-xs uppercase tracking-wider text-zinc-500 mt-1 font-medium"), g.Text(label)),
	)
}

func activitiesTable(acts []storage.Activity) g.Node {
	rows := make([]g.Node, 0, len(acts))
	for _, a := range acts {
		rows = append(rows, Tr(Class("border-t border-slate-800"),
			Td(Class("py-2 pr-4 whitespace-nowrap"), g.Text(a.Timestamp.Local().Format(time.DateTime))),
			Td(Class("py-2 pr-4 font-medium text-white"), g.Text(a.Action)),
			Td(Class("py-2 font-mono text-xs break-all"), g.Text(detailsText(a.Details))),
		))
	}
	return section("activities", "Recent activity", len(acts) == 0, "No activity yet.",
		Table(Class("w-full text-sm text-left"),
			THead(Tr(Th(g.Text("Time")), Th(g.Text("Action")), Th(g.Text("Details")))),
			TBody(g.Group(rows)),
		),
	)
}

func usersTable(users []storage.User) g.Node {
	rows := make([]g.Node, 0, len(users))
	for _, u := range users {
		rows = append(rows, Tr(Class("border-t border-slate-800"),
			Td(Class("py-2 pr-4 tabular-nums"), g.Text(strconv.FormatInt(u.ID, 10))),
			Td(Class("py-2 pr-4"), g.Text(u.Username)),
			Td(Class("py-2"), g.Text(u.FirstName)),
		))
	}
	return section("users", "Users", len(users) == 0, "No users yet.",
		Table(Class("w-full text-sm text-left"),
			THead(Tr(Th(g.Text("ID")), Th(g.Text("Username")), Th(g.Text("First name")))),
			TBody(g.Group(rows)),
		),
	)
}

func section(id, title string, empty bool, emptyText string, table g.Node) g.Node {
	body := table
	if empty {
		body = P(Class("text-zinc-500"), g.Text(emptyText))
	}
	return Section(ID(id), Class("bg-slate-900 rounded-xl p-6"),
		H2(Class("text-lg font-semibold text-zinc-300 mb-4"), g.Text(title)),
		body,
	)
}

func detailsText(details map[string]any) string {
	if len(details) == 0 {
		return ""
	}
	b, err := json.Marshal(details)
	if err != nil {
		return ""
	}
	return string(b)
}
