package build

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyzeDetectsTypeAndStack(t *testing.T) {
	cases := []struct {
		desc  string
		typ   string
		stack Stack
	}{
		{"Una tienda en línea con carrito", TypeWeb, Stack{Language: "javascript", Framework: "react"}},
		{"Una API REST en Flask con PostgreSQL", TypeAPI, Stack{Language: "python", Framework: "flask", Database: "postgresql"}},
		{"API con express y mongo", TypeAPI, Stack{Language: "javascript", Framework: "express", Database: "mongodb"}},
		{"Una app móvil para notas", TypeMobile, Stack{Language: "javascript", Framework: "react"}},
		{"Servicio en python puro con sqlite", TypeWeb, Stack{Language: "python", Framework: "react", Database: "sqlite"}},
		{"Panel con Vue y MariaDB", TypeWeb, Stack{Language: "javascript", Framework: "vue", Database: "mysql"}},
	}
	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			a := Analyze(tc.desc)
			require.Equal(t, tc.typ, a.Type)
			require.Equal(t, tc.stack, a.Stack)
		})
	}
}

func TestProjectName(t *testing.T) {
	require.Equal(t, "TaskFlow", ProjectName(`Crea una aplicación llamada "TaskFlow" para tareas`))
	require.Equal(t, "blog-personal", ProjectName("Un proyecto blog-personal con comentarios"))
	require.Equal(t, "tienda-de-ropa", ProjectName("Tienda de ropa, con pagos"))

	generated := ProjectName("¡¿ !!")
	require.True(t, strings.HasPrefix(generated, "proyecto-"))
	require.Len(t, generated, len("proyecto-")+8)
}

func TestPlanTasksByProjectShape(t *testing.T) {
	web := PlanTasks(Analysis{Type: TypeWeb, Stack: Stack{Framework: "react"}}, 1)
	require.Equal(t, []string{"setup", "dependencies", "ui_components", "testing"}, taskIDs(web.Tasks))

	api := PlanTasks(Analysis{Type: TypeAPI, Stack: Stack{Framework: "flask", Database: "postgresql"}}, 1)
	require.Equal(t, []string{"setup", "dependencies", "database", "endpoints", "testing"}, taskIDs(api.Tasks))

	total := 0
	for _, task := range api.Tasks {
		require.Equal(t, TaskPending, task.Status)
		require.Len(t, task.Subtasks, 3)
		total += task.Time
	}
	require.Equal(t, total, api.EstimatedTime)
	require.Equal(t, 10, api.Tasks[0].Time)
	require.Equal(t, 75, api.EstimatedTime)
	require.Contains(t, api.Summary, "## 📝 Plan de Desarrollo Detallado")
	require.Contains(t, api.Summary, "- **Tiempo estimado:** 40-75 minutos")
	require.Contains(t, api.Summary, "#### 4. Implementación de endpoints")
	require.Contains(t, api.Summary, "- `app.py`")
	require.Contains(t, api.Summary, "- ... y 3 archivos más")
}

func TestPlanTasksScalesWithSpeed(t *testing.T) {
	a := Analysis{Type: TypeWeb}
	fast := PlanTasks(a, speeds[SpeedFast].factor)
	slow := PlanTasks(a, speeds[SpeedThorough].factor)
	require.Less(t, fast.EstimatedTime, slow.EstimatedTime)
}

func TestPlanFilesCoversEveryStack(t *testing.T) {
	require.Contains(t, PlanFiles(Stack{Framework: "react"}), "src/App.js")
	require.Contains(t, PlanFiles(Stack{Framework: "flask", Language: "python"}), "templates/base.html")
	require.Contains(t, PlanFiles(Stack{Framework: "django", Language: "python"}), "main.py")
	require.Contains(t, PlanFiles(Stack{Framework: "angular", Language: "javascript"}), "index.html")
	for _, fw := range []string{"react", "flask", "express", "vue", "django"} {
		require.NotEmpty(t, PlanFiles(Stack{Framework: fw}))
	}
}

func TestFileContent(t *testing.T) {
	j := Job{Name: "demo", Description: "una demo", TechStack: &Stack{Framework: "flask"}}
	require.Equal(t, "# demo\n\nuna demo\n", FileContent("README.md", j))
	require.Equal(t, "flask\n", FileContent("requirements.txt", j))
	require.Contains(t, FileContent("templates/index.html", j), "<title>demo</title>")
	require.Empty(t, FileContent("public/favicon.ico", j))
}

func taskIDs(tasks []Task) []string {
	out := make([]string, len(tasks))
	for i, task := range tasks {
		out[i] = task.ID
	}
	return out
}
