package insights

import (
	"fmt"
	"strings"
)

const chunkPromptTemplate = `### ROLE You are a meticulous **Supply-Chain Data Analyst** embedded in our forecasting platform. You have full command of descriptive statistics, time-series diagnostics, and business-oriented storytelling. Write for demand planners and business managers who want quick, actionable takeaways.

### GOAL From the **new forecast data** you just received (*note: this is a **chunked portion** of the full dataset*) surface the **top insights** that help users:
1. Understand material demand swings (biggest MoM jumps & drops) and their likely drivers.
2. Spot SKU x Channel combinations with consistent growth or decline trends.
3. Detect unusual patterns in history (e.g., long zero-demand periods followed by spikes).
4. Explain **why** these trends or patterns likely happened, using statistical or business evidence (e.g., promo_flag, seasonality, historical context).
5. Decide what to act on now (e.g., "stock up", "watch inventory", "investigate promo impact") without forcing them to debug the model.

### INFORMATION ACCESS You are provided with a **chunked slice** (chunk %d of %d) of the overall dataset:
%s

Here is a breakdown of each column in the dataset:
- sheet: The company that sells the product.
- item: A unique identifier for the product.
- model: The model used to generate the forecast values.
- ds: The date associated with the forecast.
- forecast: The predicted number of sales for the product on the given date.
- Columns starting with "hist_": These represent the actual number of sales for the product in previous months. For example, "hist_june_2025" contains the actual sales for June 2025.

Use the "hist_" columns as a general historical baseline for your insights.
To calculate percent_change_mom, compare the forecast to the most recent "hist_" column.

*You will see other chunks separately. Treat your response as self-contained, but precise and consistent in format with earlier chunks so we can later combine them.*

### INSTRUCTIONS
* Work at **SKU-Channel granularity** (e.g., "SKU 12345 - Amazon.com") when citing results.
* Compute month-over-month %% change on the *forecast* for each SKU-Channel.
* Identify the **top N (default = 10) largest increases** and **top N largest decreases**.
* Flag SKU-Channels with a **steady CAGR** (>= tolerance) over the last *k* periods (default = 6).
* Scan historical_data to find patterns:
  - >= 3 straight periods of ~0 demand followed by a spike >= 5x historical median.
  - Abrupt structural breaks (mean shift, variance jump).
* Link each insight to plausible drivers (promo_flag, seasonality, external_signals) when evidence exists; otherwise say "driver unknown".
* For each insight, include a concise **explanation or root cause** of why the trend or anomaly likely occurred.
* End with **"Planner Actions"**: concise bullets of recommended next steps.

### STYLE Use plain English phrases and avoid jargon. Keep numeric values to one decimal unless integers. Limit each insight to <= 40 words.`

const mergePromptTemplate = `You are a **Supply-Chain Data Analyst**. Your job now is to **combine and summarize** the following insight reports into a single, coherent document. Preserve structure, conciseness, and actionable insights.

Here are the reports:
%s

### TASK
Summarize the most important trends and anomalies across all reports, removing duplicates, clustering similar insights, and keeping explanations clear and useful.

End with a final **Planner Actions** list.`

const skuGroupPromptTemplate = `You are a **Supply-Chain Data Analyst**. Summarize the key demand trends for the SKU group "%s" in the forecast data below. Return the group name and a short list of trends, each with a one-sentence explanation of its likely cause.

%s`

// ReportSeparator joins chunk fragments in the merge prompt.
const ReportSeparator = "\n\n---\n\n"

func chunkPrompt(chunkCSV string, chunk, total int) string {
	return fmt.Sprintf(chunkPromptTemplate, chunk, total, chunkCSV)
}

func mergePrompt(fragments []string) string {
	return fmt.Sprintf(mergePromptTemplate, strings.Join(fragments, ReportSeparator))
}

func skuGroupPrompt(group, csvText string) string {
	return fmt.Sprintf(skuGroupPromptTemplate, group, csvText)
}
